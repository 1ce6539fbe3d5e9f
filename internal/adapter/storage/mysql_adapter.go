package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// CreateOrder decrements the voucher's durable stock (only while stock > 0)
// and inserts the order in one transaction. The transaction boundary lives
// here, not in the core: callers see a single atomic operation.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.VoucherOrder) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE seckill_voucher
		SET stock = stock - 1, updated_at = NOW()
		WHERE voucher_id = ? AND stock > 0`,
		order.VoucherID,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if rows == 0 {
		return port.ErrStockDepleted
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO voucher_order (id, user_id, voucher_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.VoucherID, order.Status,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	var count int64
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voucher_order
		WHERE user_id = ? AND voucher_id = ?`, userID, voucherID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (m *MySQLAdapter) GetVoucher(ctx context.Context, voucherID int64) (*domain.Voucher, error) {
	var v domain.Voucher
	err := m.db.QueryRowContext(ctx, `
		SELECT voucher_id, title, stock, begin_time, end_time, created_at, updated_at
		FROM seckill_voucher WHERE voucher_id = ?`, voucherID,
	).Scan(&v.ID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime, &v.CreatedAt, &v.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}
	return &v, nil
}

func (m *MySQLAdapter) SaveVoucher(ctx context.Context, v domain.Voucher) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO seckill_voucher (voucher_id, title, stock, begin_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE title = VALUES(title), stock = VALUES(stock),
			begin_time = VALUES(begin_time), end_time = VALUES(end_time), updated_at = NOW()`,
		v.ID, v.Title, v.Stock, v.BeginTime, v.EndTime,
	)
	if err != nil {
		return fmt.Errorf("save voucher: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetShop(ctx context.Context, shopID int64) (*domain.Shop, error) {
	var s domain.Shop
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, address, avg_price, score, open
		FROM shop WHERE id = ?`, shopID,
	).Scan(&s.ID, &s.Name, &s.Address, &s.AvgPrice, &s.Score, &s.Open)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}
	return &s, nil
}

func (m *MySQLAdapter) UpdateShop(ctx context.Context, s domain.Shop) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE shop SET name = ?, address = ?, avg_price = ?, score = ?, open = ?
		WHERE id = ?`,
		s.Name, s.Address, s.AvgPrice, s.Score, s.Open, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update shop: %w", err)
	}
	return nil
}
