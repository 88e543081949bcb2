// Package account holds the account and WebAuthn credential records and the
// CredentialStore abstraction that persists them.
//
// Two stores are provided:
//
//   - InMemCredentialStore, a mutex-guarded map store used by tests and
//     single-process deployments.
//   - PostgresCredentialStore, backed by pgx. Its schema ships as embedded
//     goose migrations (see Migrate).
//
// Both stores enforce the same rules: email and name are unique, a TOTP
// secret exists exactly when two-factor is enabled, and credential counters
// only move through a compare-and-swap in UpdateCredentialCounter.
package account
