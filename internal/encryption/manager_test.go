package encryption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/config"
)

// fakeKMS wraps data keys under its own master key, the way KMS does with a CMK.
type fakeKMS struct {
	master []byte
	calls  int
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	f.calls++
	key := bytes.Repeat([]byte{byte(f.calls)}, 32)
	wrapped, err := seal(f.master, key)
	if err != nil {
		return nil, err
	}
	return &kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: wrapped, KeyId: in.KeyId}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	key, err := open(f.master, in.CiphertextBlob)
	if err != nil {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: key, KeyId: aws.String("alias/otc")}, nil
}

func localManager(t *testing.T) *EncryptionManager {
	t.Helper()
	em, err := NewLocalManager(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	return em
}

func TestLocalSealOpen(t *testing.T) {
	ctx := context.Background()
	em := localManager(t)

	plaintext := []byte(`{"name":"Bob","password_hash":"$2a$10$abc"}`)
	sealed, err := em.Seal(ctx, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Bob")

	var envelope EncryptedData
	require.NoError(t, json.Unmarshal(sealed, &envelope))
	assert.Equal(t, "v1", envelope.Version)
	assert.Equal(t, "local", envelope.KeyID)

	opened, err := em.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealUsesFreshDataKeys(t *testing.T) {
	ctx := context.Background()
	em := localManager(t)

	a, err := em.Seal(ctx, []byte("same"))
	require.NoError(t, err)
	b, err := em.Seal(ctx, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	ctx := context.Background()
	em := localManager(t)

	sealed, err := em.Seal(ctx, []byte("pending signup"))
	require.NoError(t, err)

	var envelope EncryptedData
	require.NoError(t, json.Unmarshal(sealed, &envelope))
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.EncryptedValue)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff
	envelope.EncryptedValue = base64.StdEncoding.EncodeToString(ciphertext)
	tampered, err := json.Marshal(&envelope)
	require.NoError(t, err)

	_, err = em.Open(ctx, tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	for _, raw := range [][]byte{nil, []byte("not json"), []byte(`{"version":"v0"}`)} {
		_, err = em.Open(ctx, raw)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	}
}

func TestOpenWithDifferentMasterKeyFails(t *testing.T) {
	ctx := context.Background()
	sealed, err := localManager(t).Seal(ctx, []byte("secret"))
	require.NoError(t, err)

	other, err := NewLocalManager(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	_, err = other.Open(ctx, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewLocalManagerKeyLength(t *testing.T) {
	_, err := NewLocalManager([]byte("short"))
	assert.Error(t, err)
}

func TestKMSSealOpen(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{master: bytes.Repeat([]byte{9}, 32)}
	em := NewKMSManager(fake, "alias/otc")

	sealed, err := em.Seal(ctx, []byte("pending signup"))
	require.NoError(t, err)

	var envelope EncryptedData
	require.NoError(t, json.Unmarshal(sealed, &envelope))
	assert.Equal(t, "alias/otc", envelope.KeyID)

	opened, err := em.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("pending signup"), opened)
	assert.Equal(t, 1, fake.calls)
}

func TestNewEncryptionManager(t *testing.T) {
	ctx := context.Background()

	dev, err := NewEncryptionManager(ctx, &config.Config{Environment: config.EnvDevelopment})
	require.NoError(t, err)
	sealed, err := dev.Seal(ctx, []byte("x"))
	require.NoError(t, err)
	opened, err := dev.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), opened)

	_, err = NewEncryptionManager(ctx, &config.Config{Environment: config.EnvProduction})
	assert.Error(t, err)

	cfg := &config.Config{Environment: config.EnvProduction}
	cfg.KMS.LocalMasterKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{3}, 32))
	_, err = NewEncryptionManager(ctx, cfg)
	assert.NoError(t, err)

	cfg.KMS.LocalMasterKey = "!!!"
	_, err = NewEncryptionManager(ctx, cfg)
	assert.Error(t, err)
}
