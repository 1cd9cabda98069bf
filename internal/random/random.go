// Package random is the default source of opaque tokens, numeric codes and
// their lookup hashes.
package random

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	opaqueTokenSize = 32
	minCodeDigits   = 4
	maxCodeDigits   = 10
)

var ErrInvalidCodeLength = errors.New("invalid numeric code length")

// Provider draws from crypto/rand. The zero value is ready to use.
type Provider struct{}

// GenerateOpaqueToken returns 32 random bytes as unpadded base64url.
func (Provider) GenerateOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// GenerateNumericCode returns a uniformly distributed decimal string of
// exactly length digits; leading zeros are kept.
func (Provider) GenerateNumericCode(length int) (string, error) {
	if length < minCodeDigits || length > maxCodeDigits {
		return "", ErrInvalidCodeLength
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != length {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// Hash returns the hex sha256 of token. It is deterministic so it can serve
// as a lookup key.
func (Provider) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
