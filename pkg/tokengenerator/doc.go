// Package tokengenerator issues the signed access tokens returned by a
// completed login.
//
// A TokenIssuer wraps a TokenGenerator: RSATokenGenerator (RS256, with a kid
// header) when a private key is configured, JwtTokenGenerator (HS256) with a
// shared secret otherwise.
package tokengenerator
