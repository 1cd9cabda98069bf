package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2ID = "argon2id"

var ErrMalformedHash = errors.New("malformed argon2id hash")

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns parameters suitable for interactive logins.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return errors.New("argon2 memory must be at least 8192 KiB")
	case c.Time < 1:
		return errors.New("argon2 time must be at least 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be at least 1")
	case c.SaltLength < 16:
		return errors.New("argon2 salt must be at least 16 bytes")
	case c.KeyLength < 16:
		return errors.New("argon2 key must be at least 16 bytes")
	}
	return nil
}

// phc is a decoded $argon2id$ string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version, p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

func decodePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != argon2ID {
		return phc{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	var p phc
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return phc{}, fmt.Errorf("%w: params %q", ErrMalformedHash, fields[3])
	}
	if p.memory < 8*1024 || p.time < 1 || p.parallelism < 1 {
		return phc{}, fmt.Errorf("%w: params %q", ErrMalformedHash, fields[3])
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < 16 {
		return phc{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return phc{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

// decodeB64 accepts padded and unpadded standard base64 so hashes written
// by other PHC implementations still verify.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Argon2 hashes passwords with Argon2id into PHC strings.
type Argon2 struct {
	config Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a salted PHC string from password. Length policy beyond the
// shared input bounds belongs to the caller.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password, Argon2MaxBytes); err != nil {
		return "", err
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify reports whether password matches encodedHash. A malformed hash is
// an error, a mismatch is (false, nil).
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > Argon2MaxBytes {
		return false, ErrPasswordTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

func (a *Argon2) MaxPasswordBytes() int { return Argon2MaxBytes }

func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$"+argon2ID+"$")
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the current configuration.
func (a *Argon2) NeedsRehash(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	c := a.config
	return p.memory < c.Memory || p.time < c.Time || p.parallelism < c.Parallelism ||
		uint32(len(p.key)) != c.KeyLength, nil
}
