package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// codeAlphabet is the alphanumeric alphabet for verification codes. Codes are
// case-sensitive; the alphabet is part of the delivered-code contract and
// must not change while codes are in flight.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewCode returns a cryptographically random alphanumeric code of the given
// length.
func NewCode(length int) (string, error) {
	if length < 4 || length > 32 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}

	return b.String(), nil
}
