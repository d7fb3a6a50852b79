package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"otc-service/internal/config"
	"otc-service/internal/util"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const algorithm = "argon2id"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnknownPepper       = errors.New("pepper version not found")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher produces salted, peppered argon2id hashes for one-time codes and bcrypt hashes
// for account passwords. Every stored code hash records the pepper version and cost
// parameters it was made with, so peppers can be rotated without invalidating live codes.
type Hasher struct {
	params     Argon2Params
	bcryptCost int

	mu      sync.RWMutex
	current *Pepper
	peppers map[int]*Pepper
}

func NewHasher(cfg *config.Config) (*Hasher, error) {
	h := &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		bcryptCost: cfg.Hashing.BcryptCost,
		peppers:    make(map[int]*Pepper),
	}
	if h.bcryptCost == 0 {
		h.bcryptCost = bcrypt.DefaultCost
	}

	if len(cfg.Hashing.Peppers) == 0 {
		util.Warn("No code peppers configured - generating an ephemeral one, live codes will not survive a restart")
		if err := h.RotatePepper(); err != nil {
			return nil, err
		}
		return h, nil
	}

	for _, raw := range cfg.Hashing.Peppers {
		p, err := parsePepper(raw)
		if err != nil {
			return nil, err
		}
		h.peppers[p.Version] = p
	}
	h.current = h.latestPepper()

	util.Info("Code hasher initialized",
		util.Int("pepper_version", h.current.Version),
		util.Int("pepper_count", len(h.peppers)),
	)
	return h, nil
}

func parsePepper(raw string) (*Pepper, error) {
	version, value, ok := strings.Cut(raw, ":")
	if !ok || value == "" {
		return nil, fmt.Errorf("pepper must be version:secret, got %q", raw)
	}
	v, err := strconv.Atoi(version)
	if err != nil || v < 1 {
		return nil, fmt.Errorf("invalid pepper version %q", version)
	}
	return &Pepper{Value: value, Version: v, CreatedAt: time.Now()}, nil
}

func (h *Hasher) latestPepper() *Pepper {
	versions := make([]int, 0, len(h.peppers))
	for v := range h.peppers {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return h.peppers[versions[len(versions)-1]]
}

// RotatePepper installs a freshly generated pepper as the current version.
func (h *Hasher) RotatePepper() error {
	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		return fmt.Errorf("failed to generate pepper: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	version := 1
	if h.current != nil {
		version = h.current.Version + 1
	}
	h.current = &Pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   version,
	}
	h.peppers[version] = h.current

	util.Info("Pepper rotated", util.Int("version", version))
	return nil
}

// HashCode hashes a one-time code bound to purpose, so a hash issued for one flow
// never verifies in another.
func (h *Hasher) HashCode(code, purpose string) (string, error) {
	h.mu.RLock()
	pepper := h.current
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(h.material(code, pepper.Value, purpose), salt,
		h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$pv=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version, pepper.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyCode re-derives the hash of code and compares it in constant time.
func (h *Hasher) VerifyCode(code, purpose, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 7 || parts[1] != algorithm {
		return false, ErrInvalidHash
	}

	var version, pepperVersion int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrInvalidHash
	}
	if version != argon2.Version {
		return false, ErrIncompatibleVersion
	}
	if _, err := fmt.Sscanf(parts[3], "pv=%d", &pepperVersion); err != nil {
		return false, ErrInvalidHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[4], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return false, ErrInvalidHash
	}

	pepper, err := h.getPepper(pepperVersion)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(h.material(code, pepper, purpose), salt,
		iterations, memory, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) material(code, pepper, purpose string) []byte {
	return []byte(code + "\x00" + pepper + "\x00" + purpose)
}

func (h *Hasher) getPepper(version int) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if p, ok := h.peppers[version]; ok {
		return p.Value, nil
	}
	return "", ErrUnknownPepper
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func (h *Hasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *Hasher) ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
