package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ldhieu/seckill/internal/port"
)

const keyPrefix = "lock:"

// unlockScript deletes the key only if the stored token still belongs to
// this holder. The check and the delete must be one atomic step: between a
// client-side GET and DEL the TTL could expire and another holder could
// acquire the key, and a plain DEL would then release the new holder's lock.
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

// Client acquires short-lived locks in the shared Redis. Each acquisition
// gets its own token (process id + per-acquisition sequence) so releases by
// stale holders never touch a lock that was re-acquired after TTL expiry.
type Client struct {
	client     redis.UniversalClient
	instanceID string
	seq        atomic.Int64
}

func NewClient(client redis.UniversalClient) *Client {
	return &Client{
		client:     client,
		instanceID: uuid.NewString() + "-",
	}
}

// TryLock makes a single SET NX attempt. A nil Mutex means the lock is held
// elsewhere; the caller owns any retry policy.
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (port.Mutex, error) {
	token := c.instanceID + strconv.FormatInt(c.seq.Add(1), 10)

	ok, err := c.client.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	if !ok {
		return nil, nil
	}

	return &Mutex{client: c.client, key: keyPrefix + name, token: token}, nil
}

// Mutex is one held lock. It is released at most once; a release after the
// TTL already expired is a safe no-op.
type Mutex struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (m *Mutex) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, m.client, []string{m.key}, m.token).Err(); err != nil {
		return fmt.Errorf("release lock %q: %w", m.key, err)
	}
	return nil
}
