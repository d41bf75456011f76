package accounts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

type mockRepository struct {
	accounts []Account
	err      error
}

func (m *mockRepository) ListActive(context.Context) ([]Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]Account(nil), m.accounts...), nil
}

func (m *mockRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]Account, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Account
	for _, a := range m.accounts {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) GetByCode(_ context.Context, code string) (Account, error) {
	for _, a := range m.accounts {
		if NormalizeCode(a.Code) == code {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", shared.ErrNotFound, code)
}

func chart(codes ...string) *mockRepository {
	repo := &mockRepository{}
	for _, code := range codes {
		repo.accounts = append(repo.accounts, Account{ID: uuid.New(), Code: code, Description: "acct " + code})
	}
	return repo
}

func codes(accs []Account) []string {
	out := make([]string, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Code)
	}
	return out
}

func TestResolveRangeUsesNumericOrder(t *testing.T) {
	dir := NewDirectory(chart("2000", "1100", "999", "1010", "10100"))

	got, err := dir.ResolveRange(context.Background(), "1000", "2000")
	require.NoError(t, err)
	assert.Equal(t, []string{"1010", "1100", "2000"}, codes(got))
}

func TestResolveRangeOpenBounds(t *testing.T) {
	dir := NewDirectory(chart("30", "4", "200"))

	got, err := dir.ResolveRange(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "30", "200"}, codes(got))

	got, err = dir.ResolveRange(context.Background(), "30", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"30", "200"}, codes(got))
}

func TestResolveRangeRejectsInvertedBounds(t *testing.T) {
	dir := NewDirectory(chart("1"))
	_, err := dir.ResolveRange(context.Background(), "2000", "1000")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveSortsAndSkipsUnknown(t *testing.T) {
	repo := chart("3000", "1000")
	dir := NewDirectory(repo)

	got, err := dir.Resolve(context.Background(), []uuid.UUID{repo.accounts[0].ID, uuid.New(), repo.accounts[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"1000", "3000"}, codes(got))

	got, err = dir.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetAndByCode(t *testing.T) {
	repo := chart("ab-10")
	dir := NewDirectory(repo)

	acc, err := dir.Get(context.Background(), repo.accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "ab-10", acc.Code)

	_, err = dir.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	acc, err = dir.ByCode(context.Background(), " AB-10 ")
	require.NoError(t, err)
	assert.Equal(t, repo.accounts[0].ID, acc.ID)
}

func TestUniqueIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{a, b}, UniqueIDs([]uuid.UUID{a, uuid.Nil, b, a}))
}

func TestCompareCodes(t *testing.T) {
	assert.Negative(t, CompareCodes("999", "1000"))
	assert.Zero(t, CompareCodes("abc", "ABC"))
}
