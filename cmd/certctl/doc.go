/*
Certctl is a command line client for the certificate registry.

	certctl keygen                               # writes caller.key, prints the address
	certctl initialize                           # the key's address becomes admin
	certctl mint --to 0xabc... --item-id 1
	certctl --key-file owner.key transfer --to 0xdef... --item-id 1
	certctl --key-file buyer.key burn --item-id 1
	certctl is-valid --item-id 1
	certctl show --item-id 1
	certctl admin

Mutating commands sign their request with --key-file. Error responses are
printed with the registry error kind, e.g. "already_burned".
*/
package main
