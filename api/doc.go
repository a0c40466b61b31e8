/*
Package api holds the wire types shared by the registry HTTP server and its clients.

Mutating requests (initialize, mint, burn, transfer) are JSON bodies signed by
the caller, see package auth. Read requests are public GETs. Every error
response is an ErrorResponse whose Kind names the registry error that caused
it, so clients can map failures back to the interfaces sentinel errors with
interfaces.ErrorForKind.

Subpackage clients implements a Go client for the API.
*/
package api
