package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"otc-service/internal/config"
)

// BucketingManager spreads audit events over a fixed number of buckets so sinks can
// partition by a stable, identifier-derived key.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return NewWithBuckets(cfg.Bucketing.EventBuckets)
}

func NewWithBuckets(eventBuckets int) *BucketingManager {
	if eventBuckets < 1 {
		eventBuckets = 1
	}
	return &BucketingManager{
		eventBuckets: eventBuckets,
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New64()
			},
		},
	}
}

// GetEventBucket returns a bucket in [0, eventBuckets).
func (bm *BucketingManager) GetEventBucket(key string) int {
	return int(bm.getHash(key) % uint64(bm.eventBuckets))
}

// GetDateBucket returns the UTC day of t, used as a secondary partition.
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) GetEventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
