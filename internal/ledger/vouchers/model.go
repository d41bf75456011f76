package vouchers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Header is a voucher document owning zero or more line entries.
type Header struct {
	ID             uuid.UUID
	Kind           Kind
	Code           string
	Date           time.Time
	BankCode       *string
	CenterRef      *uuid.UUID
	AccountOfficer *string
	Amount         decimal.Decimal
	EncodedBy      uuid.UUID
	Attachment     *string
	Fields         map[string]any
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Active reports whether the header has not been soft-deleted.
func (h Header) Active() bool { return h.DeletedAt == nil }

// Entry is a single debit or credit posting owned by a header.
type Entry struct {
	ID            uuid.UUID
	HeaderID      uuid.UUID
	Line          int
	AccountCodeID uuid.UUID
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Particular    *string
	ClientRef     *uuid.UUID
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Active reports whether the entry has not been soft-deleted.
func (e Entry) Active() bool { return e.DeletedAt == nil }
