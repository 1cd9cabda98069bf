package password

import (
	"errors"
)

// Input ceilings per algorithm. bcrypt ignores everything past 72 bytes;
// Argon2id has no such limit, so its ceiling only bounds hashing cost.
const (
	BcryptMaxBytes = 72
	Argon2MaxBytes = 1024
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds the algorithm input limit")
	ErrUnknownHash     = errors.New("unrecognized password hash format")
)

// Hasher turns passwords into storable hashes and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Algorithm is a Hasher that can recognise its own output.
type Algorithm interface {
	Hasher
	Handles(encodedHash string) bool
	MaxPasswordBytes() int
}

// MaxBytesFor returns the input ceiling of the named algorithm
// ("argon2id" or "bcrypt").
func MaxBytesFor(algorithm string) int {
	if algorithm == "bcrypt" {
		return BcryptMaxBytes
	}
	return Argon2MaxBytes
}

// Chain hashes with the first algorithm and verifies with whichever
// algorithm recognises the stored hash. It lets hosts keep legacy bcrypt
// hashes valid while new passwords are written with Argon2id.
type Chain struct {
	algorithms []Algorithm
}

func NewChain(primary Algorithm, legacy ...Algorithm) *Chain {
	return &Chain{algorithms: append([]Algorithm{primary}, legacy...)}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.algorithms[0].Hash(password)
}

// MaxPasswordBytes is the ceiling of the algorithm new hashes are written
// with.
func (c *Chain) MaxPasswordBytes() int {
	return c.algorithms[0].MaxPasswordBytes()
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	for _, a := range c.algorithms {
		if a.Handles(encodedHash) {
			return a.Verify(password, encodedHash)
		}
	}
	return false, ErrUnknownHash
}

func checkLength(password string, max int) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > max {
		return ErrPasswordTooLong
	}
	return nil
}

// NeedsRehash reports whether encodedHash should be replaced with a fresh
// Hash: it was written by a legacy algorithm, or by the primary algorithm
// with weaker parameters.
func (c *Chain) NeedsRehash(encodedHash string) (bool, error) {
	primary := c.algorithms[0]
	if !primary.Handles(encodedHash) {
		for _, a := range c.algorithms[1:] {
			if a.Handles(encodedHash) {
				return true, nil
			}
		}
		return false, ErrUnknownHash
	}
	if r, ok := primary.(interface {
		NeedsRehash(string) (bool, error)
	}); ok {
		return r.NeedsRehash(encodedHash)
	}
	return false, nil
}
