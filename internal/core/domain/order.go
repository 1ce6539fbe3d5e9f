package domain

import "time"

type OrderStatus string

const (
	OrderStatusUnpaid    OrderStatus = "unpaid"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// VoucherOrder is the durable record written by the background worker
// after an admitted purchase.
type VoucherOrder struct {
	ID        int64
	UserID    int64
	VoucherID int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderIntent is what the admission script enqueues: the already-issued
// order id plus the (user, voucher) pair it was admitted for.
type OrderIntent struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// StreamEntry is an OrderIntent as delivered by the order stream. EntryID
// is the stream-assigned id used for acknowledgement.
type StreamEntry struct {
	EntryID string
	Intent  OrderIntent
}
