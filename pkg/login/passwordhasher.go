package login

import (
	"fmt"
	"strings"
)

// PasswordVersion identifies the hashing scheme of a stored password.
type PasswordVersion int

const (
	// PasswordV1 is an unsalted hex SHA-256 digest from imported data.
	PasswordV1 PasswordVersion = 1
	// PasswordV2 is bcrypt.
	PasswordV2 PasswordVersion = 2
	// PasswordV3 is Argon2id in PHC string format.
	PasswordV3 PasswordVersion = 3

	CurrentPasswordVersion = PasswordV3
)

// PasswordHasher hashes and verifies passwords for one scheme.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hashedPassword string) (bool, error)
	Version() PasswordVersion
}

// DetectVersion infers the scheme from the encoded hash.
func DetectVersion(hashedPassword string) (PasswordVersion, error) {
	switch {
	case strings.HasPrefix(hashedPassword, "$argon2id$"):
		return PasswordV3, nil
	case strings.HasPrefix(hashedPassword, "$2a$"),
		strings.HasPrefix(hashedPassword, "$2b$"),
		strings.HasPrefix(hashedPassword, "$2y$"):
		return PasswordV2, nil
	case isSHA256Hex(hashedPassword):
		return PasswordV1, nil
	default:
		return 0, fmt.Errorf("unrecognized password hash format")
	}
}

// PasswordHasherFactory resolves hashers by version.
type PasswordHasherFactory struct {
	hashers map[PasswordVersion]PasswordHasher
	current PasswordVersion
}

// NewPasswordHasherFactory registers every supported scheme with Argon2id as
// the scheme for new hashes.
func NewPasswordHasherFactory() *PasswordHasherFactory {
	f := &PasswordHasherFactory{
		hashers: make(map[PasswordVersion]PasswordHasher),
		current: CurrentPasswordVersion,
	}
	for _, h := range []PasswordHasher{&SHA256Hasher{}, NewBcryptHasher(), NewArgon2Hasher()} {
		f.hashers[h.Version()] = h
	}
	return f
}

func (f *PasswordHasherFactory) GetHasher(version PasswordVersion) (PasswordHasher, error) {
	h, ok := f.hashers[version]
	if !ok {
		return nil, fmt.Errorf("unsupported password version: %d", version)
	}
	return h, nil
}

func (f *PasswordHasherFactory) GetCurrentHasher() PasswordHasher {
	return f.hashers[f.current]
}

// Verify checks password against a hash of any registered version.
func (f *PasswordHasherFactory) Verify(password, hashedPassword string) (bool, error) {
	version, err := DetectVersion(hashedPassword)
	if err != nil {
		return false, err
	}
	h, err := f.GetHasher(version)
	if err != nil {
		return false, err
	}
	return h.Verify(password, hashedPassword)
}

// NeedsRehash reports whether the hash uses an older scheme.
func (f *PasswordHasherFactory) NeedsRehash(hashedPassword string) bool {
	version, err := DetectVersion(hashedPassword)
	return err != nil || version != f.current
}
