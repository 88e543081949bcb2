package account

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresCredentialStore implements CredentialStore using PostgreSQL.
type PostgresCredentialStore struct {
	db DBTX
}

func NewPostgresCredentialStore(db DBTX) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

const accountColumns = `id, email, name, password_hash, email_valid, email_validation_code, hash, roles,
	using_two_factor, totp_secret, require_2fa_basic, require_2fa_social, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.PasswordHash,
		&a.EmailValid,
		&a.EmailValidationCode,
		&a.Hash,
		&a.Roles,
		&a.UsingTwoFactor,
		&a.TOTPSecret,
		&a.Require2FAForBasicLogin,
		&a.Require2FAForSocialLogin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (s *PostgresCredentialStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	acct, err := scanAccount(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Account{}, errors.NotFound("account", email)
		}
		return Account{}, errors.InternalWrap(err, "failed to query account")
	}
	return acct, nil
}

func (s *PostgresCredentialStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY email`)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to list accounts")
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to scan account")
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalWrap(err, "failed to list accounts")
	}
	return out, nil
}

func (s *PostgresCredentialStore) Create(ctx context.Context, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (
			id, email, name, password_hash, email_valid, email_validation_code, hash, roles,
			using_two_factor, totp_secret, require_2fa_basic, require_2fa_social
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+accountColumns,
		acct.ID,
		acct.Email,
		acct.Name,
		acct.PasswordHash,
		acct.EmailValid,
		acct.EmailValidationCode,
		acct.Hash,
		acct.RoleList(),
		acct.UsingTwoFactor,
		acct.TOTPSecret,
		acct.Require2FAForBasicLogin,
		acct.Require2FAForSocialLogin,
	)
	created, err := scanAccount(row)
	if err != nil {
		return Account{}, mapWriteError(err, "failed to create account")
	}
	slog.Debug("Account created", "email", created.Email)
	return created, nil
}

func (s *PostgresCredentialStore) Update(ctx context.Context, email string, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE accounts SET
			email = $2,
			name = $3,
			password_hash = $4,
			email_valid = $5,
			email_validation_code = $6,
			roles = $7,
			using_two_factor = $8,
			totp_secret = $9,
			require_2fa_basic = $10,
			require_2fa_social = $11,
			updated_at = now()
		WHERE email = $1
		RETURNING `+accountColumns,
		email,
		acct.Email,
		acct.Name,
		acct.PasswordHash,
		acct.EmailValid,
		acct.EmailValidationCode,
		acct.RoleList(),
		acct.UsingTwoFactor,
		acct.TOTPSecret,
		acct.Require2FAForBasicLogin,
		acct.Require2FAForSocialLogin,
	)
	updated, err := scanAccount(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Account{}, errors.NotFound("account", email)
		}
		return Account{}, mapWriteError(err, "failed to update account")
	}
	return updated, nil
}

func (s *PostgresCredentialStore) Delete(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, email)
	if err != nil {
		return errors.InternalWrap(err, "failed to delete account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("account", email)
	}
	return nil
}

func (s *PostgresCredentialStore) ChangePassword(ctx context.Context, email, oldHash, newHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $3, updated_at = now()
		WHERE email = $1 AND password_hash = $2`,
		email, oldHash, newHash)
	if err != nil {
		return errors.InternalWrap(err, "failed to change password")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.FindByEmail(ctx, email); err != nil {
			return err
		}
		return errors.Conflict("password changed concurrently")
	}
	return nil
}

const credentialColumns = `credential_id, account_email, public_key, algorithm, counter, origin, device_name, created_at, updated_at`

func scanCredential(row pgx.Row) (WebAuthnCredential, error) {
	var c WebAuthnCredential
	var counter int64
	err := row.Scan(
		&c.CredentialID,
		&c.AccountEmail,
		&c.PublicKey,
		&c.Algorithm,
		&counter,
		&c.Origin,
		&c.DeviceName,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.Counter = uint32(counter)
	return c, err
}

func (s *PostgresCredentialStore) FindCredentials(ctx context.Context, email string) ([]WebAuthnCredential, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+credentialColumns+` FROM webauthn_credentials
		WHERE account_email = $1
		ORDER BY created_at, credential_id`, email)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to query credentials")
	}
	defer rows.Close()

	var out []WebAuthnCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to scan credential")
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalWrap(err, "failed to query credentials")
	}
	return out, nil
}

func (s *PostgresCredentialStore) SaveCredential(ctx context.Context, cred WebAuthnCredential) (WebAuthnCredential, error) {
	if cred.CredentialID == "" {
		return WebAuthnCredential{}, errors.InvalidInput("credential id is required")
	}
	if cred.DeviceName == "" {
		cred.DeviceName = DefaultDeviceName
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO webauthn_credentials (
			credential_id, account_email, public_key, algorithm, counter, origin, device_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+credentialColumns,
		cred.CredentialID,
		cred.AccountEmail,
		cred.PublicKey,
		cred.Algorithm,
		int64(cred.Counter),
		cred.Origin,
		cred.DeviceName,
	)
	saved, err := scanCredential(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return WebAuthnCredential{}, errors.NotFound("account", cred.AccountEmail)
		}
		return WebAuthnCredential{}, mapWriteError(err, "failed to save credential")
	}
	return saved, nil
}

func (s *PostgresCredentialStore) UpdateCredentialCounter(ctx context.Context, credentialID string, expected, next uint32) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE webauthn_credentials SET counter = $3, updated_at = now()
		WHERE credential_id = $1 AND counter = $2`,
		credentialID, int64(expected), int64(next))
	if err != nil {
		return errors.InternalWrap(err, "failed to update credential counter")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webauthn_credentials WHERE credential_id = $1)`, credentialID).Scan(&exists)
	if err != nil {
		return errors.InternalWrap(err, "failed to query credential")
	}
	if !exists {
		return errors.NotFound("credential", credentialID)
	}
	return errors.ReplayedAssertion("credential counter already advanced")
}

func mapWriteError(err error, message string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "accounts_email_key":
			return errors.Conflict("email already in use")
		case "accounts_name_key":
			return errors.Conflict("name already in use")
		case "webauthn_credentials_pkey":
			return errors.Conflict("credential already registered")
		default:
			return errors.Wrap(err, errors.ErrCodeConflict, fmt.Sprintf("%s: duplicate value", message))
		}
	}
	return errors.InternalWrap(err, message)
}
