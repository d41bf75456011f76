package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditTrailRow is one transaction-first line.
type AuditTrailRow struct {
	Doc                string          `json:"doc"`
	Date               time.Time       `json:"date"`
	Particular         string          `json:"particular"`
	AccountCode        string          `json:"accountCode"`
	AccountDescription string          `json:"accountDescription"`
	Debit              decimal.Decimal `json:"debit"`
	Credit             decimal.Decimal `json:"credit"`
	Source             string          `json:"source,omitempty"`
	Bold               bool            `json:"bold,omitempty"`
}

// AuditTrailReport lists every posting grouped by transaction with one grand total.
type AuditTrailReport struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Rows        []AuditTrailRow `json:"rows"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
}

type txnKey struct {
	source string
	header uuid.UUID
}

// BuildAuditTrail lays the same rows out by transaction. Transactions appear in the order
// they are first met walking accounts and their rows; lines of one transaction stay
// together. The beginning balance, when supplied, is a bold row before the first entry.
func BuildAuditTrail(in Input) AuditTrailReport {
	report := AuditTrailReport{From: in.From, To: in.To}
	if in.Beginning != nil && len(in.Accounts) > 0 {
		first := in.Accounts[0]
		amt := in.Beginning[first.ID]
		report.Rows = append(report.Rows, AuditTrailRow{
			Doc:                BeginningDoc,
			Date:               in.From,
			AccountCode:        first.Code,
			AccountDescription: first.Description,
			Debit:              amt.Debit,
			Credit:             amt.Credit,
			Bold:               true,
		})
	}

	order := make([]txnKey, 0)
	grouped := make(map[txnKey][]AuditTrailRow)
	for _, acc := range in.Accounts {
		for _, e := range in.Entries[acc.ID] {
			key := txnKey{source: e.Source, header: e.HeaderID}
			if _, ok := grouped[key]; !ok {
				order = append(order, key)
			}
			grouped[key] = append(grouped[key], AuditTrailRow{
				Doc:                e.Doc,
				Date:               e.Date,
				Particular:         e.Particular,
				AccountCode:        acc.Code,
				AccountDescription: acc.Description,
				Debit:              e.Debit,
				Credit:             e.Credit,
				Source:             e.Source,
			})
		}
	}
	for _, key := range order {
		report.Rows = append(report.Rows, grouped[key]...)
	}
	for _, r := range report.Rows {
		report.TotalDebit = report.TotalDebit.Add(r.Debit)
		report.TotalCredit = report.TotalCredit.Add(r.Credit)
	}
	return report
}
