// Package login verifies the password factor.
//
// PasswordAuthenticator checks an email/password pair against the
// CredentialStore. Hashes are versioned: new passwords are stored as
// Argon2id, while bcrypt and legacy unsalted SHA-256 digests still verify so
// that imported accounts can sign in and be upgraded on their next login.
//
//	auth := login.NewPasswordAuthenticator(store)
//	acct, err := auth.Authenticate(ctx, "orion@test.com", "12345678")
//	if err != nil {
//	    // INVALID_INPUT for malformed credentials, UNAUTHORIZED otherwise
//	}
package login
