package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
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

func resetVoucher(ctx context.Context, client *redis.Client, voucherID int64) {
	client.Del(ctx,
		fmt.Sprintf("%s%d", stockKeyPrefix, voucherID),
		fmt.Sprintf("%s%d", dedupKeyPrefix, voucherID),
	)
}

func resetStream(ctx context.Context, client *redis.Client) {
	client.Del(ctx, orderStreamKey)
}

func TestAdmit_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	resetVoucher(ctx, client, 7001)
	resetStream(ctx, client)
	adapter.SeedStock(ctx, 7001, 10)

	code, err := adapter.Admit(ctx, 7001, 100, 900001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != domain.AdmissionOK {
		t.Fatalf("expected admission, got code %d", code)
	}

	stock, _ := client.Get(ctx, "seckill:stock:7001").Int()
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}

	isMember, _ := client.SIsMember(ctx, "seckill:order:7001", "100").Result()
	if !isMember {
		t.Error("expected dedup marker for user 100")
	}

	length, _ := client.XLen(ctx, orderStreamKey).Result()
	if length != 1 {
		t.Errorf("expected 1 enqueued intent, got %d", length)
	}
}

func TestAdmit_OutOfStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	resetVoucher(ctx, client, 7002)
	adapter.SeedStock(ctx, 7002, 0)

	code, err := adapter.Admit(ctx, 7002, 100, 900002)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != domain.AdmissionOutOfStock {
		t.Errorf("expected out-of-stock, got code %d", code)
	}
}

func TestAdmit_MissingStockKey(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	resetVoucher(ctx, client, 7003)

	code, err := adapter.Admit(ctx, 7003, 100, 900003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != domain.AdmissionOutOfStock {
		t.Errorf("expected out-of-stock for unseeded voucher, got code %d", code)
	}
}

func TestAdmit_AlreadyPurchased(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	resetVoucher(ctx, client, 7004)
	resetStream(ctx, client)
	adapter.SeedStock(ctx, 7004, 10)

	if code, _ := adapter.Admit(ctx, 7004, 100, 900004); code != domain.AdmissionOK {
		t.Fatalf("first admission failed with code %d", code)
	}

	code, err := adapter.Admit(ctx, 7004, 100, 900005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != domain.AdmissionAlreadyPurchased {
		t.Errorf("expected already-purchased, got code %d", code)
	}

	// Stock decremented only once.
	stock, _ := client.Get(ctx, "seckill:stock:7004").Int()
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}

func TestAdmit_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	const initialStock = 20
	const totalRequests = 50

	resetVoucher(ctx, client, 7005)
	resetStream(ctx, client)
	adapter.SeedStock(ctx, 7005, initialStock)

	var admitted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			code, err := adapter.Admit(ctx, 7005, userID, 910000+userID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if code == domain.AdmissionOK {
				admitted.Add(1)
			}
		}(int64(i + 1))
	}

	wg.Wait()

	if admitted.Load() != initialStock {
		t.Errorf("expected %d admissions, got %d", initialStock, admitted.Load())
	}

	stock, _ := client.Get(ctx, "seckill:stock:7005").Int()
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}

	length, _ := client.XLen(ctx, orderStreamKey).Result()
	if length != initialStock {
		t.Errorf("expected %d intents, got %d", initialStock, length)
	}
}

func TestStream_ReadAckPending(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	resetVoucher(ctx, client, 7006)
	resetStream(ctx, client)
	adapter.SeedStock(ctx, 7006, 5)

	if err := adapter.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	// Idempotent on an existing group.
	if err := adapter.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}

	if code, _ := adapter.Admit(ctx, 7006, 200, 920001); code != domain.AdmissionOK {
		t.Fatalf("admission failed with code %d", code)
	}

	entry, err := adapter.ReadNew(ctx)
	if err != nil {
		t.Fatalf("read new: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an entry")
	}
	want := domain.OrderIntent{OrderID: 920001, UserID: 200, VoucherID: 7006}
	if entry.Intent != want {
		t.Errorf("expected intent %+v, got %+v", want, entry.Intent)
	}

	// Delivered but unacknowledged: visible in the pending list.
	pending, err := adapter.ReadPending(ctx)
	if err != nil {
		t.Fatalf("read pending: %v", err)
	}
	if pending == nil || pending.EntryID != entry.EntryID {
		t.Fatalf("expected pending entry %s, got %+v", entry.EntryID, pending)
	}

	if err := adapter.Ack(ctx, entry.EntryID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	pending, err = adapter.ReadPending(ctx)
	if err != nil {
		t.Fatalf("read pending after ack: %v", err)
	}
	if pending != nil {
		t.Errorf("expected empty pending list, got %+v", pending)
	}
}

func TestStream_MalformedEntryCarriesID(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.XGroupDestroy(ctx, orderStreamKey, orderStreamGroup)
	resetStream(ctx, client)
	if err := adapter.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	// An entry missing the order id field cannot be decoded.
	entryID, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: orderStreamKey,
		Values: map[string]interface{}{"userId": "7", "voucherId": "1"},
	}).Result()
	if err != nil {
		t.Fatalf("xadd: %v", err)
	}

	entry, err := adapter.ReadNew(ctx)
	if !errors.Is(err, port.ErrMalformedIntent) {
		t.Fatalf("expected ErrMalformedIntent, got %v", err)
	}
	if entry == nil || entry.EntryID != entryID {
		t.Fatalf("expected entry id %s alongside the error, got %+v", entryID, entry)
	}

	// The id is enough to acknowledge and drop the entry.
	if err := adapter.Ack(ctx, entry.EntryID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err := adapter.ReadPending(ctx)
	if err != nil {
		t.Fatalf("read pending: %v", err)
	}
	if pending != nil {
		t.Errorf("expected empty pending list after dropping malformed entry, got %+v", pending)
	}
}
