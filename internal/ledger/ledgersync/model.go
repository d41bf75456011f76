package ledgersync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// Action tags an item of an offline batch.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EntryOp is one entry-level operation nested under a header.
type EntryOp struct {
	Action        Action
	ID            uuid.UUID
	Line          int
	AccountCodeID uuid.UUID
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Particular    *string
	ClientRef     *uuid.UUID
	// Version is the entry version the client last saw; required for updates.
	Version int64
}

// HeaderInput carries a new header and its nested entry operations.
type HeaderInput struct {
	Code           string
	Date           time.Time
	BankCode       *string
	CenterRef      *uuid.UUID
	AccountOfficer *string
	Amount         decimal.Decimal
	// Attachment is a stored file path. On update nil leaves it unchanged and "" clears it.
	Attachment *string
	Fields     map[string]any
	Entries    []EntryOp
}

// HeaderPatch replaces the common fields of an existing header, merges Fields, and
// applies nested entry operations.
type HeaderPatch struct {
	ID      uuid.UUID
	Version int64
	HeaderInput
}

// Batch is one voucher type's offline changes.
type Batch struct {
	Creates []HeaderInput
	Updates []HeaderPatch
	Deletes []uuid.UUID
}

// Empty reports whether the batch carries no operations.
func (b Batch) Empty() bool {
	return len(b.Creates) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// KindBatch pairs a batch with its voucher type.
type KindBatch struct {
	Kind vouchers.Kind
	Batch
}

// Result lists the headers touched by a committed sync call.
type Result struct {
	Created  map[vouchers.Kind][]uuid.UUID
	Updated  map[vouchers.Kind][]uuid.UUID
	Deleted  map[vouchers.Kind][]uuid.UUID
	Logs     int
	Orphaned []string
}

func newResult() Result {
	return Result{
		Created: make(map[vouchers.Kind][]uuid.UUID),
		Updated: make(map[vouchers.Kind][]uuid.UUID),
		Deleted: make(map[vouchers.Kind][]uuid.UUID),
	}
}

// EntryUpdate pairs new entry values with the version they must replace.
type EntryUpdate struct {
	Entry           vouchers.Entry
	ExpectedVersion int64
}

// OpError names the logical operation that aborted a batch.
type OpError struct {
	Kind  vouchers.Kind
	Op    Action
	Index int
	ID    uuid.UUID
	Err   error
}

func (e *OpError) Error() string {
	if e.ID != uuid.Nil {
		return fmt.Sprintf("sync %s %s #%d (%s): %v", e.Kind, e.Op, e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("sync %s %s #%d: %v", e.Kind, e.Op, e.Index, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
