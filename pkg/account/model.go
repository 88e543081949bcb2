package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	DefaultDeviceName = "Unknown Device"
)

// COSE algorithm identifiers accepted for WebAuthn credentials.
const (
	AlgES256 = -7
	AlgEdDSA = -8
	AlgRS256 = -257
)

// Account is a local identity.
type Account struct {
	ID                       uuid.UUID
	Email                    string
	Name                     string
	PasswordHash             string
	EmailValid               bool
	EmailValidationCode      string
	Hash                     string // external reference, emitted as c_hash
	Roles                    []string
	UsingTwoFactor           bool
	TOTPSecret               string
	Require2FAForBasicLogin  bool
	Require2FAForSocialLogin bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// NewAccount returns an account with generated identifiers and the default
// policy: role user, both 2FA channel flags on, email not yet validated.
func NewAccount(name, email, passwordHash string) Account {
	now := time.Now().UTC()
	return Account{
		ID:                       uuid.New(),
		Email:                    email,
		Name:                     name,
		PasswordHash:             passwordHash,
		EmailValidationCode:      uuid.NewString(),
		Hash:                     uuid.NewString(),
		Roles:                    []string{RoleUser},
		Require2FAForBasicLogin:  true,
		Require2FAForSocialLogin: true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// RoleList returns the account roles, defaulting to ["user"].
func (a Account) RoleList() []string {
	if len(a.Roles) == 0 {
		return []string{RoleUser}
	}
	return append([]string(nil), a.Roles...)
}

// HasRole reports whether the account carries role.
func (a Account) HasRole(role string) bool {
	for _, r := range a.RoleList() {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the account has the admin role.
func (a Account) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// Requires2FA reports whether a login over the given channel must be
// completed with a second factor.
func (a Account) Requires2FA(social bool) bool {
	if !a.UsingTwoFactor {
		return false
	}
	if social {
		return a.Require2FAForSocialLogin
	}
	return a.Require2FAForBasicLogin
}

// Validate checks the record invariants enforced by every store write.
func (a Account) Validate() error {
	if a.Email == "" {
		return errors.InvalidInput("email is required")
	}
	if a.Name == "" {
		return errors.InvalidInput("name is required")
	}
	if (a.TOTPSecret != "") != a.UsingTwoFactor {
		return errors.InvalidInput("totp secret must be set exactly when two-factor is enabled")
	}
	return nil
}

// WebAuthnCredential is a registered public-key credential.
type WebAuthnCredential struct {
	AccountEmail string
	CredentialID string // base64url
	PublicKey    []byte // COSE_Key from the attested credential data
	Algorithm    int
	Counter      uint32
	Origin       string
	DeviceName   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
