package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	envelopeVersion = "v1"
	localKeyID      = "local"
)

// KMSAPI is the subset of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// EncryptedData is the sealed envelope as persisted alongside a credential.
type EncryptedData struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

type EncryptionManager struct {
	kmsClient KMSAPI
	keyID     string
	masterKey []byte
}

// NewEncryptionManager uses AWS KMS when enabled; otherwise data keys are wrapped with the
// configured local master key, or an ephemeral one outside production.
func NewEncryptionManager(ctx context.Context, cfg *config.Config) (*EncryptionManager, error) {
	if cfg.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		util.Info("Envelope encryption backed by AWS KMS", util.String("region", cfg.KMS.Region))
		return NewKMSManager(kms.NewFromConfig(awsCfg), cfg.KMS.KeyID), nil
	}

	if cfg.KMS.LocalMasterKey == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("local master key is required when KMS is disabled in production")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate master key: %w", err)
		}
		util.Warn("No master key configured, sealed payloads will not survive a restart")
		return NewLocalManager(key)
	}

	key, err := base64.StdEncoding.DecodeString(cfg.KMS.LocalMasterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid local master key: %w", err)
	}
	return NewLocalManager(key)
}

func NewKMSManager(client KMSAPI, keyID string) *EncryptionManager {
	return &EncryptionManager{kmsClient: client, keyID: keyID}
}

func NewLocalManager(masterKey []byte) (*EncryptionManager, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	return &EncryptionManager{masterKey: masterKey, keyID: localKeyID}, nil
}

// GenerateDataKey returns a fresh AES-256 data key and its wrapped form.
func (em *EncryptionManager) GenerateDataKey(ctx context.Context) (*DataKey, error) {
	if em.kmsClient != nil {
		result, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(em.keyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate data key: %w", err)
		}
		return &DataKey{
			Plaintext:  result.Plaintext,
			Ciphertext: result.CiphertextBlob,
			KeyID:      em.keyID,
		}, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	wrapped, err := seal(em.masterKey, key)
	if err != nil {
		return nil, err
	}
	return &DataKey{Plaintext: key, Ciphertext: wrapped, KeyID: localKeyID}, nil
}

func (em *EncryptionManager) unwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if em.kmsClient != nil {
		result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: wrapped,
			KeyId:          aws.String(em.keyID),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		return result.Plaintext, nil
	}
	return open(em.masterKey, wrapped)
}

// Seal encrypts plaintext under a new data key and returns the JSON envelope.
func (em *EncryptionManager) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	dataKey, err := em.GenerateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	ciphertext, err := seal(dataKey.Plaintext, plaintext)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK:   base64.StdEncoding.EncodeToString(dataKey.Ciphertext),
		KeyID:          dataKey.KeyID,
		Version:        envelopeVersion,
		CreatedAt:      time.Now().UTC(),
	})
}

func (em *EncryptionManager) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	var envelope EncryptedData
	if err := json.Unmarshal(sealed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}
	if envelope.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %q", ErrDecryptionFailed, envelope.Version)
	}

	wrapped, err := base64.StdEncoding.DecodeString(envelope.EncryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	key, err := em.unwrapDataKey(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	return open(key, ciphertext)
}

func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
