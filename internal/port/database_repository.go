package port

import (
	"context"
	"errors"

	"github.com/ldhieu/seckill/internal/core/domain"
)

// ErrStockDepleted means the conditional durable decrement found no stock
// left. The admission script should make this unreachable; it exists as the
// last line of defense against overselling.
var ErrStockDepleted = errors.New("voucher stock depleted")

type OrderRepository interface {
	// CreateOrder persists an order and conditionally decrements the
	// voucher's durable stock (stock > 0 predicate) in one transaction.
	// Returns ErrStockDepleted when the predicate fails.
	CreateOrder(ctx context.Context, order domain.VoucherOrder) error

	// CountOrders returns how many orders the user already holds for the
	// voucher.
	CountOrders(ctx context.Context, userID, voucherID int64) (int64, error)
}

type VoucherRepository interface {
	// GetVoucher returns nil, nil when the voucher does not exist.
	GetVoucher(ctx context.Context, voucherID int64) (*domain.Voucher, error)

	SaveVoucher(ctx context.Context, voucher domain.Voucher) error
}

type ShopRepository interface {
	// GetShop returns nil, nil when the shop does not exist.
	GetShop(ctx context.Context, shopID int64) (*domain.Shop, error)

	UpdateShop(ctx context.Context, shop domain.Shop) error
}
