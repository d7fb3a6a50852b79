package scylla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{"ten minutes", now.Add(10 * time.Minute), 600},
		{"rounds up", now.Add(1500 * time.Millisecond), 2},
		{"already expired", now.Add(-time.Minute), 1},
		{"exactly now", now, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ttlSeconds(tt.expiresAt, now))
		})
	}
}
