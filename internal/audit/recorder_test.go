package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/bucketing"
	"otc-service/internal/models"
	"otc-service/internal/util"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	err    error
	ctxErr error
}

func (r *memoryRecorder) Record(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.ctxErr = ctx.Err()
	return r.err
}

func TestMulti(t *testing.T) {
	assert.Equal(t, Nop(), Multi())

	single := &memoryRecorder{}
	assert.Same(t, single, Multi(single))

	a, b := &memoryRecorder{}, &memoryRecorder{err: errors.New("sink down")}
	err := Multi(a, b).Record(context.Background(), &models.AuditEvent{Type: models.EventIssued})
	assert.EqualError(t, err, "sink down")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestTrailEmit(t *testing.T) {
	rec := &memoryRecorder{}
	buckets := bucketing.NewWithBuckets(8)
	trail := NewTrail(rec, buckets)

	trail.Emit(context.Background(), models.EventInvalidCode, models.KindSignup, "Alice@Example.com", 2)

	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.EventInvalidCode, event.Type)
	assert.Equal(t, models.KindSignup, event.Kind)
	assert.Equal(t, 2, event.Attempts)
	assert.Equal(t, util.HashIdentifier("alice@example.com"), event.IdentifierHash)
	assert.NotContains(t, event.IdentifierHash, "alice")
	assert.Equal(t, buckets.GetEventBucket(event.IdentifierHash), event.Bucket)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestTrailSurvivesCancelledRequestAndSinkErrors(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("kafka unavailable")}
	trail := NewTrail(rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() {
		trail.Emit(ctx, models.EventVerified, models.KindPasswordReset, "bob@example.com", 0)
	})
	require.Len(t, rec.events, 1)
	assert.NoError(t, rec.ctxErr)
}

func TestNilTrailIsSafe(t *testing.T) {
	var trail *Trail
	assert.NotPanics(t, func() {
		trail.Emit(context.Background(), models.EventIssued, models.KindSignup, "a@b.co", 0)
	})
	assert.NotPanics(t, func() {
		NewTrail(nil, nil).Emit(context.Background(), models.EventIssued, models.KindSignup, "a@b.co", 0)
	})
}
