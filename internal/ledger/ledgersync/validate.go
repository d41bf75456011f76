package ledgersync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// validateBatch rejects structurally malformed items before a transaction is opened.
// Debit/credit balance is deliberately not checked.
func validateBatch(src vouchers.Source, b Batch) error {
	for i, in := range b.Creates {
		if err := validateHeader(in); err != nil {
			return &OpError{Kind: src.Kind, Op: ActionCreate, Index: i, Err: err}
		}
	}
	for i, p := range b.Updates {
		if p.ID == uuid.Nil {
			return &OpError{Kind: src.Kind, Op: ActionUpdate, Index: i, Err: shared.Validationf("id required")}
		}
		if p.Version < 1 {
			return &OpError{Kind: src.Kind, Op: ActionUpdate, Index: i, ID: p.ID, Err: shared.Validationf("version required")}
		}
		if err := validateHeader(p.HeaderInput); err != nil {
			return &OpError{Kind: src.Kind, Op: ActionUpdate, Index: i, ID: p.ID, Err: err}
		}
	}
	for i, id := range b.Deletes {
		if id == uuid.Nil {
			return &OpError{Kind: src.Kind, Op: ActionDelete, Index: i, Err: shared.Validationf("id required")}
		}
	}
	return nil
}

func validateHeader(in HeaderInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return shared.Validationf("code required")
	}
	if in.Date.IsZero() {
		return shared.Validationf("date required")
	}
	if in.Amount.IsNegative() {
		return shared.Validationf("amount must not be negative")
	}
	for i, op := range in.Entries {
		if err := validateEntry(op); err != nil {
			return shared.Validationf("entry %d: %v", i, err)
		}
	}
	return nil
}

func validateEntry(op EntryOp) error {
	switch op.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("unknown action %q", op.Action)
	}
	if op.Action != ActionCreate && op.ID == uuid.Nil {
		return fmt.Errorf("%s requires id", op.Action)
	}
	if op.Action == ActionDelete {
		return nil
	}
	if op.Action == ActionUpdate && op.Version < 1 {
		return errors.New("update requires version")
	}
	if op.AccountCodeID == uuid.Nil {
		return errors.New("account required")
	}
	if op.Debit.IsNegative() || op.Credit.IsNegative() {
		return errors.New("debit and credit must not be negative")
	}
	return nil
}
