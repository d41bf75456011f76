package httpapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// Date is a calendar day on the wire: "2006-01-02" or an RFC3339 timestamp.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := vouchers.ParseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(vouchers.DateLayout))
}

type entryRequest struct {
	Action        string          `json:"action" validate:"required,oneof=create update delete"`
	ID            uuid.UUID       `json:"id"`
	Line          int             `json:"line" validate:"gte=0"`
	AccountCodeID uuid.UUID       `json:"accountCodeId"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Particular    *string         `json:"particular" validate:"omitempty,max=512"`
	ClientID      *uuid.UUID      `json:"clientId"`
	Version       int64           `json:"version" validate:"gte=0"`
}

type headerRequest struct {
	ID          uuid.UUID       `json:"id"`
	Version     int64           `json:"version" validate:"gte=0"`
	Code        string          `json:"code" validate:"required,max=64"`
	Date        Date            `json:"date"`
	BankCode    *string         `json:"bankCode" validate:"omitempty,max=64"`
	CenterID    *uuid.UUID      `json:"centerId"`
	AcctOfficer *string         `json:"acctOfficer" validate:"omitempty,max=128"`
	Amount      decimal.Decimal `json:"amount"`
	Attachment  *string         `json:"attachment" validate:"omitempty,max=512"`
	Fields      map[string]any  `json:"fields"`
	Entries     []entryRequest  `json:"entries" validate:"dive"`
}

type batchRequest struct {
	Creates []headerRequest `json:"creates" validate:"dive"`
	Updates []headerRequest `json:"updates" validate:"dive"`
	Deletes []uuid.UUID     `json:"deletes"`
}

type kindBatchRequest struct {
	Kind    string          `json:"kind" validate:"required"`
	Creates []headerRequest `json:"creates" validate:"dive"`
	Updates []headerRequest `json:"updates" validate:"dive"`
	Deletes []uuid.UUID     `json:"deletes"`
}

func (e entryRequest) toOp() ledgersync.EntryOp {
	return ledgersync.EntryOp{
		Action:        ledgersync.Action(e.Action),
		ID:            e.ID,
		Line:          e.Line,
		AccountCodeID: e.AccountCodeID,
		Debit:         e.Debit,
		Credit:        e.Credit,
		Particular:    e.Particular,
		ClientRef:     e.ClientID,
		Version:       e.Version,
	}
}

func (h headerRequest) toInput() ledgersync.HeaderInput {
	ops := make([]ledgersync.EntryOp, 0, len(h.Entries))
	for _, e := range h.Entries {
		ops = append(ops, e.toOp())
	}
	return ledgersync.HeaderInput{
		Code:           h.Code,
		Date:           h.Date.Time,
		BankCode:       h.BankCode,
		CenterRef:      h.CenterID,
		AccountOfficer: h.AcctOfficer,
		Amount:         h.Amount,
		Attachment:     h.Attachment,
		Fields:         h.Fields,
		Entries:        ops,
	}
}

func (b batchRequest) toBatch() ledgersync.Batch {
	out := ledgersync.Batch{Deletes: b.Deletes}
	for _, c := range b.Creates {
		out.Creates = append(out.Creates, c.toInput())
	}
	for _, u := range b.Updates {
		out.Updates = append(out.Updates, ledgersync.HeaderPatch{ID: u.ID, Version: u.Version, HeaderInput: u.toInput()})
	}
	return out
}

func (k kindBatchRequest) toKindBatch() ledgersync.KindBatch {
	batch := batchRequest{Creates: k.Creates, Updates: k.Updates, Deletes: k.Deletes}.toBatch()
	return ledgersync.KindBatch{Kind: vouchers.Kind(k.Kind), Batch: batch}
}

type syncResponse struct {
	Created map[vouchers.Kind][]uuid.UUID `json:"created"`
	Updated map[vouchers.Kind][]uuid.UUID `json:"updated"`
	Deleted map[vouchers.Kind][]uuid.UUID `json:"deleted"`
	Logs    int                           `json:"logs"`
}

func newSyncResponse(res ledgersync.Result) syncResponse {
	return syncResponse{Created: res.Created, Updated: res.Updated, Deleted: res.Deleted, Logs: res.Logs}
}

type balanceRequest struct {
	Year    int           `json:"year" validate:"required,gte=1900,lte=9999"`
	Entries []lineRequest `json:"entries" validate:"dive"`
}

type lineRequest struct {
	AccountCodeID uuid.UUID       `json:"accountCodeId"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
}

func (b balanceRequest) toInput() balances.Input {
	lines := make([]balances.Line, 0, len(b.Entries))
	for _, l := range b.Entries {
		lines = append(lines, balances.Line{AccountCodeID: l.AccountCodeID, Debit: l.Debit, Credit: l.Credit})
	}
	return balances.Input{Year: b.Year, Entries: lines}
}

type balanceResponse struct {
	ID        uuid.UUID       `json:"id"`
	Year      int             `json:"year"`
	Entries   []balances.Line `json:"entries"`
	EncodedBy uuid.UUID       `json:"encodedBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newBalanceResponse(bb balances.BeginningBalance) balanceResponse {
	entries := bb.Entries
	if entries == nil {
		entries = []balances.Line{}
	}
	return balanceResponse{ID: bb.ID, Year: bb.Year, Entries: entries, EncodedBy: bb.EncodedBy, CreatedAt: bb.CreatedAt, UpdatedAt: bb.UpdatedAt}
}
