package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into stored digests and checks them.
// Verify never errors: a malformed digest simply does not match.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// Supported hasher names, as configured by PASSWORD_HASHER.
const (
	HasherArgon2id = "argon2id"
	HasherSHA256   = "sha256"
	HasherBcrypt   = "bcrypt"
)

// NewHasher returns a MultiHasher whose primary algorithm is name.
func NewHasher(name string, bcryptCost int) (*MultiHasher, error) {
	var primary Hasher
	switch name {
	case HasherArgon2id, "":
		primary = NewArgon2Hasher(DefaultArgon2Params())
	case HasherSHA256:
		primary = SaltedSHA256{}
	case HasherBcrypt:
		primary = BcryptHasher{Cost: bcryptCost}
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
	return &MultiHasher{Primary: primary, bcryptCost: bcryptCost}, nil
}

// MultiHasher hashes with Primary and verifies any supported stored format,
// so accounts created under a previous algorithm can still log in.
type MultiHasher struct {
	Primary    Hasher
	bcryptCost int
}

func (m *MultiHasher) Hash(plain string) (string, error) { return m.Primary.Hash(plain) }

func (m *MultiHasher) Verify(plain, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return NewArgon2Hasher(DefaultArgon2Params()).Verify(plain, digest)
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return BcryptHasher{Cost: m.bcryptCost}.Verify(plain, digest)
	default:
		return SaltedSHA256{}.Verify(plain, digest)
	}
}

// ----- salted SHA-256 (legacy "salt:hash" format) -----

const sha256SaltLen = 16

// SaltedSHA256 stores hex(salt) + ":" + hex(SHA-256(salt || password)).
type SaltedSHA256 struct{}

func (SaltedSHA256) Hash(plain string) (string, error) {
	salt := make([]byte, sha256SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sha256Salted(salt, plain)), nil
}

func (SaltedSHA256) Verify(plain, digest string) bool {
	saltHex, sumHex, ok := strings.Cut(digest, ":")
	if !ok || saltHex == "" || sumHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, sha256Salted(salt, plain)) == 1
}

func sha256Salted(salt []byte, plain string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(plain))
	return h.Sum(nil)
}

// ----- argon2id -----

// Argon2Params configurable for hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns OWASP-recommended defaults for Argon2id.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher produces PHC strings: $argon2id$v=19$m=..,t=..,p=..$salt$hash
type Argon2Hasher struct {
	params Argon2Params
}

func NewArgon2Hasher(params Argon2Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (h *Argon2Hasher) Verify(plain, digest string) bool {
	p, salt, want, err := decodeArgon2(digest)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}

var errArgon2Format = errors.New("invalid argon2 hash format")

func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errArgon2Format
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errArgon2Format
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errArgon2Format
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, errArgon2Format
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errArgon2Format
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errArgon2Format
	}
	return p, salt, key, nil
}

// ----- bcrypt -----

// BcryptHasher wraps golang.org/x/crypto/bcrypt.  bcrypt ignores input past
// 72 bytes.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(plain string) (string, error) {
	cost := b.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (BcryptHasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// ----- policy -----

// MinResetPasswordLength is the only rule applied when a password is set
// through the reset flow.
const MinResetPasswordLength = 6

// MeetsPolicy is the registration rule: at least 8 characters, at least one
// letter and one digit, drawn only from letters, digits and @$!%*?&.
func MeetsPolicy(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("@$!%*?&", r):
		default:
			return false
		}
	}
	return letter && digit
}
