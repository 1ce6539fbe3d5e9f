package port

import (
	"context"
	"errors"

	"github.com/ldhieu/seckill/internal/core/domain"
)

// ErrMalformedIntent reports a stream entry whose payload cannot be
// decoded. Replaying such an entry can never succeed, so the consumer must
// be able to acknowledge it; reads that hit one return the entry id
// alongside an error wrapping this sentinel.
var ErrMalformedIntent = errors.New("malformed order intent")

type AdmissionStore interface {
	// Admit runs the atomic admission script: stock check, per-user dedup
	// check, stock decrement, dedup record and intent enqueue as one
	// indivisible server-side operation.
	Admit(ctx context.Context, voucherID, userID, orderID int64) (domain.AdmissionCode, error)

	// SeedStock publishes a voucher's remaining stock for admission checks.
	SeedStock(ctx context.Context, voucherID, stock int64) error
}

type OrderStream interface {
	// EnsureGroup creates the consumer group if it does not exist yet.
	EnsureGroup(ctx context.Context) error

	// ReadNew blocks for a bounded interval waiting for an undelivered
	// entry. Returns (nil, nil) when the wait times out empty. An
	// undecodable payload yields the entry id and ErrMalformedIntent.
	ReadNew(ctx context.Context) (*domain.StreamEntry, error)

	// ReadPending returns the oldest delivered-but-unacknowledged entry for
	// this consumer, or (nil, nil) when the pending list is empty. An
	// undecodable payload yields the entry id and ErrMalformedIntent.
	ReadPending(ctx context.Context) (*domain.StreamEntry, error)

	// Ack marks an entry as fully processed.
	Ack(ctx context.Context, entryID string) error
}
