package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"otc-service/internal/bucketing"
	"otc-service/internal/models"
	"otc-service/internal/util"
)

const recordTimeout = 2 * time.Second

// Recorder persists audit events somewhere outside the credential store.
type Recorder interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *models.AuditEvent) error { return nil }

// Nop discards every event.
func Nop() Recorder { return nopRecorder{} }

type multiRecorder []Recorder

// Multi fans an event out to every recorder concurrently and returns the first error.
func Multi(recorders ...Recorder) Recorder {
	switch len(recorders) {
	case 0:
		return Nop()
	case 1:
		return recorders[0]
	}
	return multiRecorder(recorders)
}

func (m multiRecorder) Record(ctx context.Context, event *models.AuditEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range m {
		r := r
		g.Go(func() error {
			return r.Record(gctx, event)
		})
	}
	return g.Wait()
}

// Trail builds events from service outcomes and records them best-effort: failures are
// logged and never reach the caller.
type Trail struct {
	recorder Recorder
	buckets  *bucketing.BucketingManager
	now      func() time.Time
}

func NewTrail(recorder Recorder, buckets *bucketing.BucketingManager) *Trail {
	if recorder == nil {
		recorder = Nop()
	}
	return &Trail{recorder: recorder, buckets: buckets, now: time.Now}
}

func (t *Trail) Emit(ctx context.Context, typ models.AuditEventType, kind models.CredentialKind, identifier string, attempts int) {
	if t == nil {
		return
	}

	idHash := util.HashIdentifier(identifier)
	event := &models.AuditEvent{
		ID:             uuid.New().String(),
		Type:           typ,
		Kind:           kind,
		IdentifierHash: idHash,
		Attempts:       attempts,
		OccurredAt:     t.now().UTC(),
	}
	if t.buckets != nil {
		event.Bucket = t.buckets.GetEventBucket(idHash)
	}

	// Recording outlives a cancelled request but not by much.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := t.recorder.Record(rctx, event); err != nil {
		util.Warn("Failed to record audit event",
			util.String("type", string(typ)),
			util.String("kind", string(kind)),
			util.ErrorField(err))
	}
}
