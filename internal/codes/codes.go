// Package codes generates the short random codes used by challenge
// flows.
package codes

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Numeric returns a string of digits exactly `digits` long, generated
// with crypto/rand. Leading zeros are allowed.
func Numeric(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
