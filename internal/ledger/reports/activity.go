// Package reports assembles ledger views from consolidated entries and carried balances.
package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/consolidate"
)

// BeginningDoc labels the synthetic beginning balance row.
const BeginningDoc = "Beg. Balance"

// Input is everything an assembler needs; assemblers never touch the store.
type Input struct {
	From     time.Time
	To       time.Time
	Accounts []accounts.Account
	Entries  map[uuid.UUID][]consolidate.Entry
	// Beginning is nil when the beginning balance row is not requested.
	Beginning map[uuid.UUID]balances.Amount
}

// Row is one line of the activity report.
type Row struct {
	Date        time.Time       `json:"date"`
	Doc         string          `json:"doc"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Particular  string          `json:"particular"`
	AcctOfficer string          `json:"acctOfficer"`
	Source      string          `json:"source,omitempty"`
	Beginning   bool            `json:"beginning,omitempty"`
}

// AccountActivity groups an account's rows with its subtotal.
type AccountActivity struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Rows        []Row           `json:"entries"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// ActivityReport is the account-grouped ledger activity view.
type ActivityReport struct {
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Accounts    []AccountActivity `json:"accounts"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
}

// BuildActivityReport groups rows by account in the given account order, keeping each
// account's rows in consolidation order. When a beginning balance is supplied, a single
// row dated From heads the first account's list. It carries only that account's carried
// amounts, not the opening figures of the whole selection; the other accounts get none.
func BuildActivityReport(in Input) ActivityReport {
	report := ActivityReport{
		From:     in.From,
		To:       in.To,
		Accounts: make([]AccountActivity, 0, len(in.Accounts)),
	}
	for i, acc := range in.Accounts {
		group := AccountActivity{
			AccountID:   acc.ID,
			Code:        acc.Code,
			Description: acc.Description,
			Rows:        make([]Row, 0, len(in.Entries[acc.ID])+1),
		}
		if i == 0 && in.Beginning != nil {
			group.Rows = append(group.Rows, beginningRow(in.From, in.Beginning[acc.ID]))
		}
		for _, e := range in.Entries[acc.ID] {
			group.Rows = append(group.Rows, Row{
				Date:        e.Date,
				Doc:         e.Doc,
				Debit:       e.Debit,
				Credit:      e.Credit,
				Particular:  e.Particular,
				AcctOfficer: e.AcctOfficer,
				Source:      e.Source,
			})
		}
		for _, r := range group.Rows {
			group.Debit = group.Debit.Add(r.Debit)
			group.Credit = group.Credit.Add(r.Credit)
		}
		report.TotalDebit = report.TotalDebit.Add(group.Debit)
		report.TotalCredit = report.TotalCredit.Add(group.Credit)
		report.Accounts = append(report.Accounts, group)
	}
	return report
}

func beginningRow(at time.Time, amt balances.Amount) Row {
	return Row{
		Date:      at,
		Doc:       BeginningDoc,
		Debit:     amt.Debit,
		Credit:    amt.Credit,
		Beginning: true,
	}
}
