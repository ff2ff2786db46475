// Package gateway implements the credential gateway port over the identity
// service's JSON HTTP API.
//
// # Error mapping
//
// Every failure is returned as a *quizdom.GatewayError wrapping one of the
// root sentinel errors, with the server's {"error": "..."} message attached
// as the reason:
//
//	401 on login                 -> ErrInvalidCredentials
//	401/403 elsewhere            -> ErrUnauthorized
//	404 on /auth/me              -> ErrUnauthorized
//	409                          -> ErrAccountExists
//	400/422 on register          -> ErrRegistrationInvalid
//	400/422 on profile update    -> ErrProfileInvalid
//	transport failure, 5xx, rest -> ErrGatewayUnavailable
//
// # Token pre-check
//
// CurrentUser fails locally with ErrUnauthorized when the bearer token is a
// JWT whose exp claim has passed. Opaque tokens always go to the network.
package gateway
