package domain

import "time"

// Voucher is a seckill voucher with a limited stock and a sale window.
type Voucher struct {
	ID        int64
	Title     string
	Stock     int64
	BeginTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdmissionCode is the integer contract of the admission script.
type AdmissionCode int

const (
	AdmissionOK               AdmissionCode = 0
	AdmissionOutOfStock       AdmissionCode = 1
	AdmissionAlreadyPurchased AdmissionCode = 2
)
