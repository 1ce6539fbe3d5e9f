package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestTryLock_Contention(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	locker := NewClient(client)
	client.Del(ctx, "lock:test-contention")

	mu, err := locker.TryLock(ctx, "test-contention", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mu == nil {
		t.Fatal("expected first acquisition to succeed")
	}

	second, err := locker.TryLock(ctx, "test-contention", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != nil {
		t.Error("expected second acquisition to fail while lock is held")
	}

	if err := mu.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	third, err := locker.TryLock(ctx, "test-contention", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == nil {
		t.Fatal("expected acquisition after release to succeed")
	}
	third.Unlock(ctx)
}

func TestUnlock_DoesNotReleaseNewHolder(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	locker := NewClient(client)
	client.Del(ctx, "lock:test-expiry")

	// First holder's TTL expires while it is still "working".
	stale, err := locker.TryLock(ctx, "test-expiry", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale == nil {
		t.Fatal("expected acquisition to succeed")
	}
	time.Sleep(200 * time.Millisecond)

	// A second holder takes over the expired key.
	current, err := locker.TryLock(ctx, "test-expiry", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current == nil {
		t.Fatal("expected takeover after expiry to succeed")
	}

	// The stale holder's release must not delete the new holder's lock.
	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale unlock failed: %v", err)
	}

	intruder, err := locker.TryLock(ctx, "test-expiry", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intruder != nil {
		t.Error("stale unlock released the new holder's lock")
		intruder.Unlock(ctx)
	}

	current.Unlock(ctx)
}

func TestTryLock_ConcurrentSingleWinner(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	locker := NewClient(client)
	client.Del(ctx, "lock:test-race")

	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu, err := locker.TryLock(ctx, "test-race", 10*time.Second)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if mu != nil {
				winners.Add(1)
			}
		}()
	}

	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners.Load())
	}

	client.Del(ctx, "lock:test-race")
}
