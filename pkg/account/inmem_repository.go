package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-mfa/pkg/errors"
)

// InMemCredentialStore implements CredentialStore in process memory.
type InMemCredentialStore struct {
	mu          sync.RWMutex
	accounts    map[string]Account // email -> account
	names       map[string]string  // name -> email
	credentials map[string]WebAuthnCredential
}

func NewInMemCredentialStore() *InMemCredentialStore {
	return &InMemCredentialStore{
		accounts:    make(map[string]Account),
		names:       make(map[string]string),
		credentials: make(map[string]WebAuthnCredential),
	}
}

func (s *InMemCredentialStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[email]
	if !ok {
		return Account{}, errors.NotFound("account", email)
	}
	return cloneAccount(acct), nil
}

func (s *InMemCredentialStore) List(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, cloneAccount(acct))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *InMemCredentialStore) Create(ctx context.Context, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.Email]; ok {
		return Account{}, errors.Conflict("email already in use")
	}
	if _, ok := s.names[acct.Name]; ok {
		return Account{}, errors.Conflict("name already in use")
	}
	for _, existing := range s.accounts {
		if acct.Hash != "" && existing.Hash == acct.Hash {
			return Account{}, errors.Conflict("account hash already in use")
		}
	}

	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	acct = cloneAccount(acct)
	s.accounts[acct.Email] = acct
	s.names[acct.Name] = acct.Email
	return cloneAccount(acct), nil
}

func (s *InMemCredentialStore) Update(ctx context.Context, email string, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[email]
	if !ok {
		return Account{}, errors.NotFound("account", email)
	}
	if acct.Email != email {
		if _, taken := s.accounts[acct.Email]; taken {
			return Account{}, errors.Conflict("email already in use")
		}
	}
	if acct.Name != current.Name {
		if _, taken := s.names[acct.Name]; taken {
			return Account{}, errors.Conflict("name already in use")
		}
	}

	acct.ID = current.ID
	acct.CreatedAt = current.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	delete(s.accounts, email)
	delete(s.names, current.Name)
	s.accounts[acct.Email] = cloneAccount(acct)
	s.names[acct.Name] = acct.Email

	if acct.Email != email {
		for id, cred := range s.credentials {
			if cred.AccountEmail == email {
				cred.AccountEmail = acct.Email
				s.credentials[id] = cred
			}
		}
	}
	return cloneAccount(acct), nil
}

func (s *InMemCredentialStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[email]
	if !ok {
		return errors.NotFound("account", email)
	}
	delete(s.accounts, email)
	delete(s.names, acct.Name)
	for id, cred := range s.credentials {
		if cred.AccountEmail == email {
			delete(s.credentials, id)
		}
	}
	return nil
}

func (s *InMemCredentialStore) ChangePassword(ctx context.Context, email, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[email]
	if !ok {
		return errors.NotFound("account", email)
	}
	if acct.PasswordHash != oldHash {
		return errors.Conflict("password changed concurrently")
	}
	acct.PasswordHash = newHash
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[email] = acct
	return nil
}

func (s *InMemCredentialStore) FindCredentials(ctx context.Context, email string) ([]WebAuthnCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []WebAuthnCredential
	for _, cred := range s.credentials {
		if cred.AccountEmail == email {
			out = append(out, cloneCredential(cred))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CredentialID < out[j].CredentialID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemCredentialStore) SaveCredential(ctx context.Context, cred WebAuthnCredential) (WebAuthnCredential, error) {
	if cred.CredentialID == "" {
		return WebAuthnCredential{}, errors.InvalidInput("credential id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[cred.AccountEmail]; !ok {
		return WebAuthnCredential{}, errors.NotFound("account", cred.AccountEmail)
	}
	if _, ok := s.credentials[cred.CredentialID]; ok {
		return WebAuthnCredential{}, errors.Conflict("credential already registered")
	}
	if cred.DeviceName == "" {
		cred.DeviceName = DefaultDeviceName
	}
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	s.credentials[cred.CredentialID] = cloneCredential(cred)
	return cloneCredential(cred), nil
}

func (s *InMemCredentialStore) UpdateCredentialCounter(ctx context.Context, credentialID string, expected, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[credentialID]
	if !ok {
		return errors.NotFound("credential", credentialID)
	}
	if cred.Counter != expected {
		return errors.ReplayedAssertion("credential counter already advanced")
	}
	cred.Counter = next
	cred.UpdatedAt = time.Now().UTC()
	s.credentials[credentialID] = cred
	return nil
}

func cloneAccount(a Account) Account {
	a.Roles = append([]string(nil), a.Roles...)
	return a
}

func cloneCredential(c WebAuthnCredential) WebAuthnCredential {
	c.PublicKey = append([]byte(nil), c.PublicKey...)
	return c
}
