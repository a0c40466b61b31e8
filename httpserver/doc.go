/*
Package httpserver serves the certificate registry over HTTP.

# Endpoints

	POST /api/v1/initialize                  signed, any caller
	POST /api/v1/mint                        signed, admin
	POST /api/v1/burn                        signed, admin or owner
	POST /api/v1/transfer                    signed, owner
	GET  /api/v1/certificates/{item_id}/valid
	GET  /api/v1/certificates/{item_id}
	GET  /api/v1/admin
	GET  /livez /readyz /drain /undrain

Signed requests carry X-Caller-Address and X-Caller-Signature headers (see
package auth). The recovered caller is the identity the registry authorizes.

# Errors

Failures are JSON api.ErrorResponse bodies. The status depends on the error kind:

	uninitialized                             412
	not_found                                 404
	unauthorized                              403
	mismatch, already_burned,
	burned_asset_immutable, certificate_exists,
	already_initialized                       409
	bad_request, invalid_identity             400
	unauthenticated                           401
	storage_unavailable                       503
	anything else                             500

Prometheus metrics are served on a separate listener when MetricsAddr is set.
*/
package httpserver
