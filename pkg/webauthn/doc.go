// Package webauthn runs the WebAuthn registration and authentication
// ceremonies for platform authenticators.
//
// A Ceremony issues challenges, keeps them in a ChallengeStore until the
// matching finish call consumes them, and verifies what the browser returns
// with go-webauthn's protocol package: client data type, challenge and
// origin, the relying-party id hash and user-presence flag, and the
// assertion signature over the stored COSE public key. Attestation trust
// anchors are not evaluated.
//
// Signature counters only move forward. A finish that presents a counter at
// or below the stored value, or that loses the compare-and-swap against a
// concurrent finish for the same credential, fails with REPLAYED_ASSERTION.
package webauthn
