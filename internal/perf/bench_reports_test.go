package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/consolidate"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/ledger/reports"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

const (
	seedAccounts = 40
	seedHeaders  = 200
)

// seededReports fills every source with headers spread across January 2024.
func seededReports(tb testing.TB) *reports.Service {
	tb.Helper()
	store := ledgertest.NewStore()
	accts := make([]accounts.Account, 0, seedAccounts)
	for i := 0; i < seedAccounts; i++ {
		accts = append(accts, store.AddAccount(fmt.Sprintf("%d", 1000+i*10), fmt.Sprintf("Account %d", i)))
	}
	for _, src := range vouchers.Default.All() {
		for h := 0; h < seedHeaders; h++ {
			header := vouchers.Header{
				ID:      uuid.New(),
				Kind:    src.Kind,
				Code:    fmt.Sprintf("%s-%04d", src.Alias, h),
				Date:    time.Date(2024, 1, 1+h%31, 0, 0, 0, 0, time.UTC),
				Amount:  decimal.NewFromInt(100),
				Fields:  map[string]any{},
				Version: 1,
			}
			store.PutHeader(header)
			debit, credit := accts[h%seedAccounts], accts[(h+1)%seedAccounts]
			store.PutEntry(src.Kind, vouchers.Entry{ID: uuid.New(), HeaderID: header.ID, Line: 1, AccountCodeID: debit.ID, Debit: decimal.NewFromInt(100), Credit: decimal.Zero, Version: 1})
			store.PutEntry(src.Kind, vouchers.Entry{ID: uuid.New(), HeaderID: header.ID, Line: 2, AccountCodeID: credit.ID, Debit: decimal.Zero, Credit: decimal.NewFromInt(100), Version: 1})
		}
	}
	return reports.NewService(accounts.NewDirectory(store), consolidate.New(store, nil), balances.NewService(store.Balances(), nil), nil, nil)
}

func januaryRequest() reports.Request {
	return reports.Request{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func BenchmarkActivityReport(b *testing.B) {
	svc := seededReports(b)
	req := januaryRequest()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Activity(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAuditTrailReport(b *testing.B) {
	svc := seededReports(b)
	req := januaryRequest()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.AuditTrail(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func TestReportLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency sampling skipped in short mode")
	}
	svc := seededReports(t)
	req := januaryRequest()

	samples := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		start := time.Now()
		if _, err := svc.Activity(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 2*time.Second {
		t.Fatalf("activity report latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
