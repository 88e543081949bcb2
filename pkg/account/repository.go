package account

import (
	"context"
)

// CredentialStore persists accounts and their WebAuthn credentials.
//
// Lookups of a missing account return an ErrCodeNotFound error. Writes that
// would duplicate an email, name or credential id return ErrCodeConflict.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	Create(ctx context.Context, acct Account) (Account, error)
	// Update replaces the account currently stored under email. acct.Email
	// may differ from email, in which case the account is re-keyed and its
	// credentials follow it.
	Update(ctx context.Context, email string, acct Account) (Account, error)
	Delete(ctx context.Context, email string) error
	// ChangePassword swaps the password hash only if the stored hash still
	// equals oldHash.
	ChangePassword(ctx context.Context, email, oldHash, newHash string) error

	FindCredentials(ctx context.Context, email string) ([]WebAuthnCredential, error)
	SaveCredential(ctx context.Context, cred WebAuthnCredential) (WebAuthnCredential, error)
	// UpdateCredentialCounter sets the counter to next only if it currently
	// equals expected; otherwise it returns ErrCodeReplayedAssertion.
	UpdateCredentialCounter(ctx context.Context, credentialID string, expected, next uint32) error
}
