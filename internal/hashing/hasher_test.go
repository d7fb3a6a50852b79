package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"otc-service/internal/config"
)

func testConfig(peppers ...string) *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Peppers:           peppers,
			BcryptCost:        bcrypt.MinCost,
		},
	}
}

func TestHashCodeRoundTrip(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	encoded, err := h.HashCode("042917", "signup")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))
	assert.NotContains(t, encoded, "042917")

	ok, err := h.VerifyCode("042917", "signup", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashCodeIsSalted(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	a, err := h.HashCode("123456", "signup")
	require.NoError(t, err)
	b, err := h.HashCode("123456", "signup")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyCodeRejectsSingleDigitChange(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	encoded, err := h.HashCode("123456", "signup")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		mutated := []byte("123456")
		mutated[i] = '0' + (mutated[i]-'0'+1)%10
		ok, err := h.VerifyCode(string(mutated), "signup", encoded)
		require.NoError(t, err)
		assert.False(t, ok, "mutation at position %d matched", i)
	}
}

func TestVerifyCodeBindsPurpose(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	encoded, err := h.HashCode("123456", "signup")
	require.NoError(t, err)

	ok, err := h.VerifyCode("123456", "password_reset", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPepperRotationKeepsOldHashesValid(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	old, err := h.HashCode("555111", "signup")
	require.NoError(t, err)

	require.NoError(t, h.RotatePepper())
	fresh, err := h.HashCode("555111", "signup")
	require.NoError(t, err)
	assert.Contains(t, fresh, "$pv=2$")

	for _, encoded := range []string{old, fresh} {
		ok, err := h.VerifyCode("555111", "signup", encoded)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestNewHasherUsesHighestPepperVersion(t *testing.T) {
	h, err := NewHasher(testConfig("1:old", "3:newest", "2:middle"))
	require.NoError(t, err)

	encoded, err := h.HashCode("000000", "signup")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$pv=3$")
}

func TestVerifyCodeErrors(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	other, err := NewHasher(testConfig("7:someone-else"))
	require.NoError(t, err)
	foreign, err := other.HashCode("123456", "signup")
	require.NoError(t, err)

	tests := []struct {
		name    string
		encoded string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$pv=1$m=1,t=1,p=1$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$pv=1$m=1024,t=1,p=1$!!!$aGFzaA", ErrInvalidHash},
		{"old argon2 version", "$argon2id$v=16$pv=1$m=1024,t=1,p=1$c2FsdA$aGFzaA", ErrIncompatibleVersion},
		{"retired pepper", foreign, ErrUnknownPepper},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.VerifyCode("123456", "signup", tt.encoded)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, ok)
		})
	}
}

func TestParsePepperRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"nocolon", "x:secret", "0:secret", "1:"} {
		_, err := NewHasher(testConfig(raw))
		assert.Error(t, err, raw)
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := NewHasher(testConfig("1:first-pepper"))
	require.NoError(t, err)

	hash, err := h.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, h.ComparePassword(hash, "hunter22"))
	assert.False(t, h.ComparePassword(hash, "hunter23"))
}
