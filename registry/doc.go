// Package registry implements the certificate registry state machine.
//
// A registry tracks the ownership of a certificate bound to an external item
// id. The admin recorded by Initialize mints certificates; the owner may
// transfer a certificate; either may burn it. A burned certificate can no
// longer be transferred or burned again and IsValid reports false for it.
//
// State lives in an interfaces.StorageBackend under four logical keys: admin,
// owner, item_id and is_burned. LayoutKeyed prefixes the certificate keys with
// certificates/<item_id>/ so one registry can hold a certificate per item.
// Values are text: identities as checksummed hex addresses, item ids in
// decimal and the burned flag as true or false. A certificate without an
// is_burned value is live.
//
// Every operation runs in one storage scope: load the state, Authorize the
// caller against the roles the operation requires, check the remaining
// preconditions in a fixed order and write back. The first failing check
// decides the returned error kind and nothing is written.
//
//	| operation  | roles          | checks, in order                                            |
//	|------------|----------------|-------------------------------------------------------------|
//	| Initialize | anyone         | admin not locked                                            |
//	| Mint       | admin          | initialized, authorized, reissue allowed                    |
//	| Burn       | admin or owner | initialized, minted, authorized, item matches, not burned   |
//	| IsValid    | anyone         | minted                                                      |
//	| Transfer   | owner          | minted, authorized, item matches, not burned                |
package registry
