// Package externalprovider resolves a social sign-in token to an email and
// display name.
//
// A token shaped like a JWT (three dot-separated segments) is decoded
// locally without signature verification. Any other token is treated as an
// opaque access token and sent to the provider's user-info endpoint as a
// bearer credential. Every failure is reported as PROVIDER_LOOKUP_FAILED.
package externalprovider
