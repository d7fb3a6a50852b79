package audit

import (
	"context"
	"errors"
	"sync"

	"otc-service/internal/models"
	"otc-service/internal/util"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit recorder closed")
)

// AsyncRecorder queues events for a single background writer so sinks never sit on the
// request path. Events that do not fit in the buffer are dropped.
type AsyncRecorder struct {
	next   Recorder
	events chan *models.AuditEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Recorder, buffer int) *AsyncRecorder {
	if buffer < 1 {
		buffer = 1
	}
	a := &AsyncRecorder{
		next:   next,
		events: make(chan *models.AuditEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues event and returns at once.
func (a *AsyncRecorder) Record(_ context.Context, event *models.AuditEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.events <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

func (a *AsyncRecorder) run() {
	defer close(a.done)
	for event := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := a.next.Record(ctx, event); err != nil {
			util.Warn("Failed to write audit event",
				util.String("type", string(event.Type)),
				util.ErrorField(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain, or for ctx to end.
func (a *AsyncRecorder) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
