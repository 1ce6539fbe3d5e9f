package idgen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// beginTimestamp anchors the timestamp half of the id: 2022-01-01T00:00:00Z.
	beginTimestamp = 1640995200

	// sequenceBits is the budget of the per-day counter. If a single day's
	// counter ever exceeds 2^32 the composed ids stop being unique; that is
	// a documented capacity limit, not handled defensively.
	sequenceBits = 32

	counterKeyPrefix = "icr:"
	dayBucketLayout  = "2006:01:02"
)

// Generator issues collision-free, roughly-monotonic 64-bit ids without a
// central sequencer: seconds-since-anchor in the high bits, a Redis-backed
// per-day sequence in the low bits.
type Generator struct {
	client redis.UniversalClient
}

func NewGenerator(client redis.UniversalClient) *Generator {
	return &Generator{client: client}
}

func (g *Generator) NextID(ctx context.Context, business string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - beginTimestamp

	// Day-bucketed counter: keeps the sequence far below the 32-bit budget
	// and yields a per-day count for free.
	key := counterKeyPrefix + business + ":" + now.Format(dayBucketLayout)
	seq, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}

	return timestamp<<sequenceBits | seq, nil
}
