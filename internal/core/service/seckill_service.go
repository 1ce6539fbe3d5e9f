package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
)

var (
	ErrVoucherNotFound  = errors.New("voucher not found")
	ErrSaleNotStarted   = errors.New("sale has not started")
	ErrSaleEnded        = errors.New("sale has ended")
	ErrOutOfStock       = errors.New("out of stock")
	ErrAlreadyPurchased = errors.New("already purchased")
)

// IDGenerator issues the order id before admission runs. Ids consumed by
// rejected attempts are never reused; the resulting gaps are accepted.
type IDGenerator interface {
	NextID(ctx context.Context, business string) (int64, error)
}

// SeckillService is the synchronous admission path. It never waits for the
// durable write: an admitted caller gets the order id back immediately and
// the intent travels to the worker through the order stream.
type SeckillService struct {
	admission port.AdmissionStore
	vouchers  port.VoucherRepository
	ids       IDGenerator
	logger    *zap.Logger
}

func NewSeckillService(admission port.AdmissionStore, vouchers port.VoucherRepository, ids IDGenerator, logger *zap.Logger) *SeckillService {
	return &SeckillService{
		admission: admission,
		vouchers:  vouchers,
		ids:       ids,
		logger:    logger,
	}
}

// Purchase admits or rejects one purchase attempt. Rejections are ordinary
// results: ErrOutOfStock and ErrAlreadyPurchased come straight from the
// admission script's integer contract, the window errors from the voucher
// record.
func (s *SeckillService) Purchase(ctx context.Context, userID, voucherID int64) (int64, error) {
	voucher, err := s.vouchers.GetVoucher(ctx, voucherID)
	if err != nil {
		return 0, fmt.Errorf("load voucher: %w", err)
	}
	if voucher == nil {
		return 0, ErrVoucherNotFound
	}

	now := time.Now()
	if now.Before(voucher.BeginTime) {
		return 0, ErrSaleNotStarted
	}
	if now.After(voucher.EndTime) {
		return 0, ErrSaleEnded
	}

	orderID, err := s.ids.NextID(ctx, "order")
	if err != nil {
		return 0, fmt.Errorf("generate order id: %w", err)
	}

	code, err := s.admission.Admit(ctx, voucherID, userID, orderID)
	if err != nil {
		return 0, fmt.Errorf("admission: %w", err)
	}

	switch code {
	case domain.AdmissionOK:
		s.logger.Debug("purchase admitted",
			zap.Int64("user_id", userID),
			zap.Int64("voucher_id", voucherID),
			zap.Int64("order_id", orderID))
		return orderID, nil
	case domain.AdmissionOutOfStock:
		return 0, ErrOutOfStock
	case domain.AdmissionAlreadyPurchased:
		return 0, ErrAlreadyPurchased
	default:
		return 0, fmt.Errorf("unexpected admission code %d", code)
	}
}

// CreateVoucher saves the voucher and seeds its stock counter so the
// admission script can see it.
func (s *SeckillService) CreateVoucher(ctx context.Context, voucher domain.Voucher) error {
	if err := s.vouchers.SaveVoucher(ctx, voucher); err != nil {
		return err
	}
	if err := s.admission.SeedStock(ctx, voucher.ID, voucher.Stock); err != nil {
		return fmt.Errorf("seed stock: %w", err)
	}
	return nil
}
