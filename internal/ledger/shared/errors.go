package shared

import (
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a referenced header, entry, account or beginning balance is missing or soft-deleted.
	ErrNotFound = errors.New("ledger: not found")
	// ErrCardinalityMismatch indicates a bulk operation touched a different row count than expected.
	ErrCardinalityMismatch = errors.New("ledger: affected row count mismatch")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrTransient indicates connectivity or session failures in the store.
	ErrTransient = errors.New("ledger: transient store error")
	// ErrStaleVersion indicates the submitted version is behind the stored one.
	ErrStaleVersion = errors.New("ledger: stale version")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("ledger: duplicate")
	// ErrAlreadyProcessed indicates an idempotency key was already committed.
	ErrAlreadyProcessed = errors.New("ledger: batch already processed")
)

// CardinalityError reports an expected/actual count pair for a bulk operation.
func CardinalityError(what string, expected, actual int64) error {
	return fmt.Errorf("%w: %s expected %d got %d", ErrCardinalityMismatch, what, expected, actual)
}

// Validationf wraps a formatted message with ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ClassifyStoreError tags connection and serialization failures as ErrTransient and
// unique violations as ErrDuplicate. Other errors pass through untouched.
func ClassifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "40001", "40P01", "57P01", "08000", "08003", "08006":
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
