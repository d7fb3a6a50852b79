package models

import "time"

type AuditEventType string

const (
	EventIssued         AuditEventType = "issued"
	EventResent         AuditEventType = "resent"
	EventDispatchFailed AuditEventType = "dispatch_failed"
	EventVerified       AuditEventType = "verified"
	EventInvalidCode    AuditEventType = "invalid_code"
	EventLocked         AuditEventType = "locked"
	EventExpired        AuditEventType = "expired"
	EventConflict       AuditEventType = "conflict"
)

// AuditEvent never carries the identifier itself, only its hash.
type AuditEvent struct {
	ID             string         `json:"id" ch:"id"`
	Type           AuditEventType `json:"type" ch:"type"`
	Kind           CredentialKind `json:"kind" ch:"kind"`
	IdentifierHash string         `json:"identifier_hash" ch:"identifier_hash"`
	Bucket         int            `json:"bucket" ch:"bucket"`
	Attempts       int            `json:"attempts" ch:"attempts"`
	OccurredAt     time.Time      `json:"occurred_at" ch:"occurred_at"`
}
