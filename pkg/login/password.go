package login

import (
	"crypto/rand"
	"math/big"
)

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	specialChars   = "!@#$%^&*()-_=+"
)

// GenerateRandomPassword returns an 8 character password with two characters
// from each of the lower, upper, digit and special sets, shuffled.
func GenerateRandomPassword() (string, error) {
	var out []byte
	for _, set := range []string{lowercaseChars, uppercaseChars, digitChars, specialChars} {
		for i := 0; i < 2; i++ {
			c, err := randomChar(set)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

// GenerateUnusablePassword returns a long random secret for accounts that
// never sign in with a password (first social login).
func GenerateUnusablePassword() (string, error) {
	const size = 32
	all := lowercaseChars + uppercaseChars + digitChars + specialChars
	out := make([]byte, size)
	for i := range out {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
