/*
Registryd serves the certificate registry over HTTP.

Settings come from, in increasing precedence: built-in defaults, the YAML file
given with --config, REGISTRY_* environment variables and command line flags.

	registryd --storage badger:///var/lib/registry --storage s3://bucket/registry?region=eu-west-1 \
		--layout keyed --allow-reissue=false

State is stored through the backends named by --storage. With more than one,
writes go to every reachable backend and reads come from the first that has
the key.
*/
package main
