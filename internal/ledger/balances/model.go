package balances

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one account's opening amounts.
type Line struct {
	AccountCodeID uuid.UUID       `json:"accountCodeId"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
}

// BeginningBalance holds the opening debit/credit per account for one fiscal year.
type BeginningBalance struct {
	ID        uuid.UUID
	Year      int
	Entries   []Line
	EncodedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Amount is a carried debit/credit pair.
type Amount struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Input is the payload for creating or replacing a beginning balance.
type Input struct {
	Year    int
	Entries []Line
}
