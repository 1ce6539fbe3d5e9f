package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
)

const (
	orderLockPrefix = "order:"
	orderLockTTL    = 10 * time.Second

	recoveryPause = 50 * time.Millisecond
)

// OrderWorker is the single background consumer that turns admitted intents
// into durable orders. It reads the order stream through a consumer group,
// acknowledges only after the durable write, and drains the pending list
// whenever the main loop hits an error, so every admitted intent is
// eventually materialized or explicitly dropped as a detected duplicate.
type OrderWorker struct {
	stream port.OrderStream
	orders port.OrderRepository
	locks  port.Locker
	logger *zap.Logger
}

func NewOrderWorker(stream port.OrderStream, orders port.OrderRepository, locks port.Locker, logger *zap.Logger) *OrderWorker {
	return &OrderWorker{
		stream: stream,
		orders: orders,
		locks:  locks,
		logger: logger,
	}
}

// Run consumes until ctx is cancelled. Transient failures never terminate
// the loop; they divert it into pending-list recovery.
func (w *OrderWorker) Run(ctx context.Context) {
	// Without the group every read fails with NOGROUP, so creation is
	// retried until it succeeds rather than logged once and forgotten.
	for {
		err := w.stream.EnsureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("ensure consumer group", zap.Error(err))
		w.pause(ctx)
	}

	// Entries delivered to a previous incarnation of this consumer but never
	// acknowledged are recovered before taking new work.
	w.drainPending(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := w.stream.ReadNew(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, port.ErrMalformedIntent) && entry != nil {
				w.dropMalformed(ctx, entry.EntryID, err)
				continue
			}
			w.logger.Error("read order stream", zap.Error(err))
			w.drainPending(ctx)
			continue
		}
		if entry == nil {
			continue
		}

		if err := w.handle(ctx, entry); err != nil {
			w.logger.Error("process order intent",
				zap.String("entry_id", entry.EntryID), zap.Error(err))
			w.drainPending(ctx)
		}
	}
}

// handle materializes one intent and acknowledges it. An error leaves the
// entry in the pending list for recovery.
func (w *OrderWorker) handle(ctx context.Context, entry *domain.StreamEntry) error {
	if err := w.materialize(ctx, entry.Intent); err != nil {
		return err
	}
	if err := w.stream.Ack(ctx, entry.EntryID); err != nil {
		return err
	}
	return nil
}

// materialize writes the durable order under the per-user lock. Dropping an
// intent (lock contention, existing order, depleted durable stock) returns
// nil: the admission script already guarantees at most one admission per
// user, so these are detected duplicates, not failures to retry.
func (w *OrderWorker) materialize(ctx context.Context, intent domain.OrderIntent) error {
	lockName := orderLockPrefix + strconv.FormatInt(intent.UserID, 10)
	mu, err := w.locks.TryLock(ctx, lockName, orderLockTTL)
	if err != nil {
		return err
	}
	if mu == nil {
		w.logger.Warn("concurrent order for user, dropping intent",
			zap.Int64("user_id", intent.UserID),
			zap.Int64("order_id", intent.OrderID))
		return nil
	}
	defer func() {
		if uerr := mu.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			w.logger.Warn("release order lock", zap.String("lock", lockName), zap.Error(uerr))
		}
	}()

	count, err := w.orders.CountOrders(ctx, intent.UserID, intent.VoucherID)
	if err != nil {
		return err
	}
	if count > 0 {
		w.logger.Warn("user already has an order, dropping intent",
			zap.Int64("user_id", intent.UserID),
			zap.Int64("voucher_id", intent.VoucherID))
		return nil
	}

	now := time.Now()
	order := domain.VoucherOrder{
		ID:        intent.OrderID,
		UserID:    intent.UserID,
		VoucherID: intent.VoucherID,
		Status:    domain.OrderStatusUnpaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, port.ErrStockDepleted) {
			w.logger.Warn("durable stock depleted, dropping intent",
				zap.Int64("order_id", intent.OrderID))
			return nil
		}
		return err
	}

	w.logger.Info("order materialized",
		zap.Int64("order_id", intent.OrderID),
		zap.Int64("user_id", intent.UserID),
		zap.Int64("voucher_id", intent.VoucherID))
	return nil
}

// drainPending retries delivered-but-unacknowledged entries until the list
// is empty. A transient failure here means a short pause and another pass,
// never a crash of the worker.
func (w *OrderWorker) drainPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := w.stream.ReadPending(ctx)
		if err != nil {
			if errors.Is(err, port.ErrMalformedIntent) && entry != nil {
				w.dropMalformed(ctx, entry.EntryID, err)
				continue
			}
			w.logger.Error("read pending list", zap.Error(err))
			w.pause(ctx)
			continue
		}
		if entry == nil {
			return
		}

		if err := w.handle(ctx, entry); err != nil {
			w.logger.Error("recover order intent",
				zap.String("entry_id", entry.EntryID), zap.Error(err))
			w.pause(ctx)
		}
	}
}

// dropMalformed acknowledges an undecodable entry. It can never be
// materialized, and unacknowledged it would be re-delivered ahead of every
// later intent, wedging the consumer.
func (w *OrderWorker) dropMalformed(ctx context.Context, entryID string, cause error) {
	w.logger.Error("dropping malformed order intent",
		zap.String("entry_id", entryID), zap.Error(cause))
	if err := w.stream.Ack(ctx, entryID); err != nil {
		w.logger.Error("ack malformed entry",
			zap.String("entry_id", entryID), zap.Error(err))
	}
}

func (w *OrderWorker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(recoveryPause):
	}
}
