package models

import "time"

// CredentialKind separates the signup and password-reset flows; records of different
// kinds for the same identifier never interfere.
type CredentialKind string

const (
	KindSignup        CredentialKind = "signup"
	KindPasswordReset CredentialKind = "password_reset"
)

func (k CredentialKind) Valid() bool {
	return k == KindSignup || k == KindPasswordReset
}

// CredentialRecord is the single live one-time credential for (Kind, Identifier).
type CredentialRecord struct {
	Identifier string         `json:"identifier" bson:"identifier" db:"identifier"`
	Kind       CredentialKind `json:"kind" bson:"kind" db:"kind"`
	CodeHash   string         `json:"-" bson:"codeHash" db:"code_hash"`
	ExpiresAt  time.Time      `json:"expires_at" bson:"expiresAt" db:"expires_at"`
	Attempts   int            `json:"attempts" bson:"attempts" db:"attempts"`
	Payload    []byte         `json:"-" bson:"payload,omitempty" db:"payload"`
	CreatedAt  time.Time      `json:"created_at" bson:"createdAt" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" bson:"updatedAt" db:"updated_at"`
}

// IsExpired reports whether the record is dead at now (now >= ExpiresAt).
func (r *CredentialRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsLocked reports whether the attempt budget is spent.
func (r *CredentialRecord) IsLocked(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}
