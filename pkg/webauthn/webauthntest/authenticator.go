// Package webauthntest provides a software authenticator that produces the
// browser-side JSON for WebAuthn ceremonies, for use in tests.
package webauthntest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttestedData = 0x40
)

// Authenticator holds one ES256 credential.
type Authenticator struct {
	CredentialID string
	Origin       string
	// FixedCounter, when true, always reports a zero counter.
	FixedCounter bool

	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	signCount uint32
}

func New(origin string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &Authenticator{
		CredentialID: base64.RawURLEncoding.EncodeToString(id),
		Origin:       origin,
		key:          key,
	}, nil
}

func clientData(typ, challenge, origin string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"type":        typ,
		"challenge":   challenge,
		"origin":      origin,
		"crossOrigin": false,
	})
	return data
}

// Create returns the registration response for challenge, carrying a
// "none" attestation object with the credential's COSE key.
func (a *Authenticator) Create(challenge string) (string, error) {
	u, err := url.Parse(a.Origin)
	if err != nil {
		return "", err
	}
	rawID, err := base64.RawURLEncoding.DecodeString(a.CredentialID)
	if err != nil {
		return "", err
	}
	coseKey, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		YCoord: a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return "", err
	}

	rpIDHash := sha256.Sum256([]byte(u.Hostname()))
	authData := make([]byte, 0, 55+len(rawID)+len(coseKey))
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, flagUserPresent|flagUserVerified|flagAttestedData)
	authData = binary.BigEndian.AppendUint32(authData, 0)
	authData = append(authData, make([]byte, 16)...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(rawID)))
	authData = append(authData, rawID...)
	authData = append(authData, coseKey...)

	attestation, err := webauthncbor.Marshal(map[string]interface{}{
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
		"authData": authData,
	})
	if err != nil {
		return "", err
	}

	resp := map[string]interface{}{
		"id":    a.CredentialID,
		"rawId": a.CredentialID,
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData("webauthn.create", challenge, a.Origin)),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attestation),
		},
	}
	out, err := json.Marshal(resp)
	return string(out), err
}

// Get returns an assertion over challenge for rpID, advancing the counter
// unless FixedCounter is set.
func (a *Authenticator) Get(challenge, rpID string) (string, error) {
	a.mu.Lock()
	counter := uint32(0)
	if !a.FixedCounter {
		a.signCount++
		counter = a.signCount
	}
	a.mu.Unlock()
	return a.GetWithCounter(challenge, rpID, counter)
}

// GetWithCounter returns an assertion that reports counter.
func (a *Authenticator) GetWithCounter(challenge, rpID string, counter uint32) (string, error) {
	rpIDHash := sha256.Sum256([]byte(rpID))
	authData := make([]byte, 37)
	copy(authData, rpIDHash[:])
	authData[32] = flagUserPresent | flagUserVerified
	binary.BigEndian.PutUint32(authData[33:], counter)

	cd := clientData("webauthn.get", challenge, a.Origin)
	cdHash := sha256.Sum256(cd)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), cdHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return "", err
	}

	resp := map[string]interface{}{
		"id":    a.CredentialID,
		"rawId": a.CredentialID,
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(cd),
			"authenticatorData": base64.RawURLEncoding.EncodeToString(authData),
			"signature":         base64.RawURLEncoding.EncodeToString(sig),
		},
	}
	out, err := json.Marshal(resp)
	return string(out), err
}
