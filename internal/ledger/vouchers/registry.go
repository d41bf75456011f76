package vouchers

import (
	"fmt"
	"sort"
)

// Kind identifies a voucher type.
type Kind string

const (
	KindLoanRelease            Kind = "loan-release"
	KindJournalVoucher         Kind = "journal-voucher"
	KindExpenseVoucher         Kind = "expense-voucher"
	KindAcknowledgementReceipt Kind = "acknowledgement"
	KindRelease                Kind = "release"
	KindEmergencyLoan          Kind = "emergency-loan"
	KindDamayanFund            Kind = "damayan-fund"
)

// Source describes where one voucher type keeps its headers and line entries.
type Source struct {
	Kind        Kind
	Label       string
	HeaderTable string
	EntryTable  string
	// ForeignKey is the entry column referencing the owning header.
	ForeignKey string
	// Alias names the source when results from several sources are merged.
	Alias string
	// Fields lists the header columns specific to this voucher type.
	Fields []Field
	// Attachments marks headers carrying a file path that must be cleaned up after commit.
	Attachments bool
}

// Field returns the field spec by its wire name.
func (s Source) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Resource is the activity log resource for headers of this source.
func (s Source) Resource() string {
	return string(s.Kind)
}

// EntryResource is the activity log resource for entries of this source.
func (s Source) EntryResource() string {
	return string(s.Kind) + "-entry"
}

// Registry is the fixed, ordered set of ledger entry sources.
type Registry struct {
	sources []Source
	index   map[Kind]int
}

// NewRegistry builds a registry, rejecting duplicate kinds and incomplete records.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make([]Source, 0, len(sources)), index: make(map[Kind]int, len(sources))}
	for _, src := range sources {
		if src.Kind == "" || src.HeaderTable == "" || src.EntryTable == "" || src.ForeignKey == "" {
			return nil, fmt.Errorf("vouchers: incomplete source %q", src.Kind)
		}
		if _, dup := r.index[src.Kind]; dup {
			return nil, fmt.Errorf("vouchers: duplicate source %q", src.Kind)
		}
		if src.Alias == "" {
			src.Alias = string(src.Kind)
		}
		r.index[src.Kind] = len(r.sources)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(sources ...Source) *Registry {
	r, err := NewRegistry(sources...)
	if err != nil {
		panic(err)
	}
	return r
}

// All returns the sources in registry order.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len reports the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

// Lookup finds a source by kind.
func (r *Registry) Lookup(kind Kind) (Source, bool) {
	idx, ok := r.index[kind]
	if !ok {
		return Source{}, false
	}
	return r.sources[idx], true
}

// Position returns the registry order of a kind, or -1.
func (r *Registry) Position(kind Kind) int {
	idx, ok := r.index[kind]
	if !ok {
		return -1
	}
	return idx
}

// Kinds lists registered kinds sorted alphabetically.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.sources))
	for _, src := range r.sources {
		kinds = append(kinds, src.Kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

var (
	checkNo   = Field{Name: "checkNo", Column: "check_no", Type: FieldString}
	checkDate = Field{Name: "checkDate", Column: "check_date", Type: FieldDate}
	remarks   = Field{Name: "remarks", Column: "remarks", Type: FieldString}
	clientID  = Field{Name: "clientId", Column: "client_id", Type: FieldUUID}
)

// Default is the back office's seven voucher sources in report merge order.
var Default = MustRegistry(
	Source{
		Kind:        KindLoanRelease,
		Label:       "Loan Release",
		HeaderTable: "loan_releases",
		EntryTable:  "loan_release_entries",
		ForeignKey:  "loan_release_id",
		Alias:       "loanRelease",
		Fields: []Field{
			clientID,
			{Name: "cycle", Column: "cycle", Type: FieldInt},
			{Name: "interestRate", Column: "interest_rate", Type: FieldDecimal},
			{Name: "noOfWeeks", Column: "no_of_weeks", Type: FieldInt},
			{Name: "typeOfLoan", Column: "type_of_loan", Type: FieldString},
			checkNo, checkDate, remarks,
		},
		Attachments: true,
	},
	Source{
		Kind:        KindJournalVoucher,
		Label:       "Journal Voucher",
		HeaderTable: "journal_vouchers",
		EntryTable:  "journal_voucher_entries",
		ForeignKey:  "journal_voucher_id",
		Alias:       "journalVoucher",
		Fields: []Field{
			{Name: "nature", Column: "nature", Type: FieldString},
			checkNo, checkDate, remarks,
		},
	},
	Source{
		Kind:        KindExpenseVoucher,
		Label:       "Expense Voucher",
		HeaderTable: "expense_vouchers",
		EntryTable:  "expense_voucher_entries",
		ForeignKey:  "expense_voucher_id",
		Alias:       "expenseVoucher",
		Fields: []Field{
			{Name: "supplierId", Column: "supplier_id", Type: FieldUUID},
			{Name: "refNo", Column: "ref_no", Type: FieldString},
			checkNo, checkDate, remarks,
		},
	},
	Source{
		Kind:        KindAcknowledgementReceipt,
		Label:       "Acknowledgement Receipt",
		HeaderTable: "acknowledgements",
		EntryTable:  "acknowledgement_entries",
		ForeignKey:  "acknowledgement_id",
		Alias:       "acknowledgement",
		Fields: []Field{
			{Name: "typeOfPayment", Column: "type_of_payment", Type: FieldString},
			{Name: "orNo", Column: "or_no", Type: FieldString},
			{Name: "cashCollection", Column: "cash_collection", Type: FieldDecimal},
			remarks,
		},
	},
	Source{
		Kind:        KindRelease,
		Label:       "Release",
		HeaderTable: "releases",
		EntryTable:  "release_entries",
		ForeignKey:  "release_id",
		Alias:       "release",
		Fields: []Field{
			{Name: "typeOfPayment", Column: "type_of_payment", Type: FieldString},
			{Name: "arNo", Column: "ar_no", Type: FieldString},
			remarks,
		},
	},
	Source{
		Kind:        KindEmergencyLoan,
		Label:       "Emergency Loan",
		HeaderTable: "emergency_loans",
		EntryTable:  "emergency_loan_entries",
		ForeignKey:  "emergency_loan_id",
		Alias:       "emergencyLoan",
		Fields:      []Field{clientID, checkNo, checkDate, remarks},
	},
	Source{
		Kind:        KindDamayanFund,
		Label:       "Damayan Fund",
		HeaderTable: "damayan_funds",
		EntryTable:  "damayan_fund_entries",
		ForeignKey:  "damayan_fund_id",
		Alias:       "damayanFund",
		Fields: []Field{
			{Name: "name", Column: "name", Type: FieldString},
			checkNo, checkDate, remarks,
		},
	},
)
