package twofa

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const (
	DefaultPeriod     = 30
	SecretSize        = 20
	QRCodeSize        = 400
	DefaultTOTPIssuer = "orion-users"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// TOTPEngine generates secrets and codes and validates submitted codes.
type TOTPEngine struct {
	period uint
	skew   uint
	now    func() time.Time
}

type Option func(*TOTPEngine)

// WithSkew accepts codes from n steps before and after the current one.
func WithSkew(n uint) Option {
	return func(e *TOTPEngine) {
		e.skew = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *TOTPEngine) {
		e.now = now
	}
}

func WithPeriod(seconds uint) Option {
	return func(e *TOTPEngine) {
		if seconds > 0 {
			e.period = seconds
		}
	}
}

func NewTOTPEngine(opts ...Option) *TOTPEngine {
	e := &TOTPEngine{
		period: DefaultPeriod,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateSecret returns 20 random bytes encoded as unpadded base32.
func (e *TOTPEngine) GenerateSecret(accountName, issuer string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      e.period,
		SecretSize:  SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "accountName", accountName, "issuer", issuer, "err", err)
		return "", errors.InternalWrap(err, "failed to generate totp secret")
	}
	return key.Secret(), nil
}

// Code returns the six digit code for secret at t.
func (e *TOTPEngine) Code(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    e.period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid totp secret")
	}
	return code, nil
}

// CurrentCode returns the code for the engine's current time.
func (e *TOTPEngine) CurrentCode(secret string) (string, error) {
	return e.Code(secret, e.now())
}

// ValidateCode checks a submitted code against secret.
func (e *TOTPEngine) ValidateCode(secret, code string) error {
	if err := ValidateCodeFormat(code); err != nil {
		return err
	}
	if secret == "" {
		return errors.Unauthorized("two-factor authentication is not enabled")
	}

	valid, err := totp.ValidateCustom(code, secret, e.now().UTC(), totp.ValidateOpts{
		Period:    e.period,
		Skew:      e.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to validate totp passcode", "err", err)
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid totp secret")
	}
	if !valid {
		return errors.Unauthorized("invalid TOTP code")
	}
	return nil
}

// ValidateCodeFormat requires exactly six ASCII digits.
func ValidateCodeFormat(code string) error {
	if !codePattern.MatchString(code) {
		return errors.InvalidInput("invalid 2FA code format")
	}
	return nil
}

// BarcodeURI builds the otpauth URI shown to authenticator apps.
func (e *TOTPEngine) BarcodeURI(secret, accountName, issuer string) string {
	return fmt.Sprintf("otpauth://totp/%s?secret=%s&issuer=%s",
		encodeComponent(issuer+":"+accountName),
		encodeComponent(secret),
		encodeComponent(issuer),
	)
}

// RenderQR encodes uri as a 400x400 PNG.
func (e *TOTPEngine) RenderQR(uri string) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid otpauth uri")
	}
	img, err := key.Image(QRCodeSize, QRCodeSize)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to render qr code")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.InternalWrap(err, "failed to encode qr code")
	}
	return buf.Bytes(), nil
}

// encodeComponent form-encodes s with spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
