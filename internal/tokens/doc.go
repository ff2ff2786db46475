// Package tokens issues and inspects the bearer tokens exchanged with the
// identity service.
//
// The development identity service signs HS256 JWTs with [Issuer]. Clients
// never hold the signing key; they only use [ExpiredAt] to skip a network
// round trip for a token whose exp claim has already passed.
package tokens
