package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ldhieu/seckill/internal/adapter/storage"
	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/core/service"
	"github.com/ldhieu/seckill/internal/idgen"
)

const (
	redisAddr     = "localhost:6379"
	voucherID     = 9001
	initialStock  = 20
	totalRequests = 50
)

// memVoucherRepo keeps the stress run independent of MySQL: the admission
// path only needs the voucher's sale window from the repository.
type memVoucherRepo struct {
	voucher domain.Voucher
}

func (m *memVoucherRepo) GetVoucher(ctx context.Context, id int64) (*domain.Voucher, error) {
	if id != m.voucher.ID {
		return nil, nil
	}
	v := m.voucher
	return &v, nil
}

func (m *memVoucherRepo) SaveVoucher(ctx context.Context, v domain.Voucher) error {
	m.voucher = v
	return nil
}

func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous run
	rdb.Del(ctx, fmt.Sprintf("seckill:stock:%d", voucherID))
	rdb.Del(ctx, fmt.Sprintf("seckill:order:%d", voucherID))
	rdb.Del(ctx, "stream.orders")

	admission := storage.NewRedisAdapter(rdb)
	now := time.Now()
	vouchers := &memVoucherRepo{voucher: domain.Voucher{
		ID:        voucherID,
		Title:     "stress voucher",
		Stock:     initialStock,
		BeginTime: now.Add(-time.Minute),
		EndTime:   now.Add(time.Hour),
	}}

	svc := service.NewSeckillService(admission, vouchers, idgen.NewGenerator(rdb), zap.NewNop())
	if err := admission.SeedStock(ctx, voucherID, initialStock); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			_, err := svc.Purchase(ctx, userID, voucherID)
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(int64(i + 1))
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Admitted:         %d\n", success)
	fmt.Printf("Rejected:         %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && fail == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d admissions, %d rejections\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d/%d, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	finalStock, _ := rdb.Get(ctx, fmt.Sprintf("seckill:stock:%d", voucherID)).Int()
	fmt.Printf("Final Redis Stock: %d\n", finalStock)
	if finalStock == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", finalStock)
	}

	streamLen, _ := rdb.XLen(ctx, "stream.orders").Result()
	fmt.Printf("Enqueued Intents:  %d\n", streamLen)
}
