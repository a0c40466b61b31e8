// Package clients provides a Go client for the certificate registry HTTP API.
//
// RegistryClient signs every mutating request with the caller's secp256k1 key
// and turns error responses into *APIError values that unwrap to the same
// sentinel errors a local registry returns:
//
//	client := clients.NewRegistryClient("http://localhost:8080", key)
//	if err := client.Burn(ctx, 1); errors.Is(err, interfaces.ErrAlreadyBurned) {
//		...
//	}
package clients
