package tokengenerator

import (
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by an access token.
type Claims struct {
	Email  string   `json:"email,omitempty"`
	UPN    string   `json:"upn,omitempty"`
	Groups []string `json:"groups,omitempty"`
	CHash  string   `json:"c_hash,omitempty"`
	jwt.RegisteredClaims
}

// TokenGenerator signs and verifies claims.
type TokenGenerator interface {
	Sign(claims Claims) (string, error)
	Parse(tokenStr string) (*Claims, error)
}

// JwtTokenGenerator signs with HS256 and a shared secret.
type JwtTokenGenerator struct {
	secret []byte
}

func NewJwtTokenGenerator(secret string) *JwtTokenGenerator {
	return &JwtTokenGenerator{secret: []byte(secret)}
}

func (g *JwtTokenGenerator) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(g.secret)
	if err != nil {
		slog.Error("Failed to sign HS256 token", "err", err)
		return "", err
	}
	return ss, nil
}

func (g *JwtTokenGenerator) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
