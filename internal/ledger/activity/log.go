// Package activity holds the append-only audit trail written alongside every ledger mutation.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Author identifies the authenticated user a mutation is attributed to.
type Author struct {
	ID       uuid.UUID
	Username string
}

// Log is one audit record. Rows are never updated or deleted.
type Log struct {
	ID        uuid.UUID
	Author    uuid.UUID
	Username  string
	Activity  string
	Resource  string
	DataID    *uuid.UUID
	CreatedAt time.Time
}

// New builds a log row for author.
func New(author Author, resource, activity string, dataID uuid.UUID) Log {
	id := dataID
	return Log{
		Author:   author.ID,
		Username: author.Username,
		Activity: activity,
		Resource: resource,
		DataID:   &id,
	}
}

// Sink accepts audit rows. Implementations write inside the caller's transaction.
type Sink interface {
	Append(ctx context.Context, logs ...Log) error
}

// Batcher is the subset of pgx.Tx used to write logs.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TxSink writes audit rows through a transaction handle.
type TxSink struct {
	tx  Batcher
	now func() time.Time
}

// NewTxSink binds a sink to tx.
func NewTxSink(tx Batcher, now func() time.Time) *TxSink {
	if now == nil {
		now = time.Now
	}
	return &TxSink{tx: tx, now: now}
}

// Append inserts all logs in one round trip.
func (s *TxSink) Append(ctx context.Context, logs ...Log) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	at := s.now()
	for _, l := range logs {
		if l.Activity == "" || l.Resource == "" {
			return errors.New("activity: log requires activity and resource")
		}
		id := l.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(`INSERT INTO activity_logs (id, author, username, activity, resource, data_id, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, l.Author, l.Username, l.Activity, l.Resource, l.DataID, at)
	}
	results := s.tx.SendBatch(ctx, batch)
	for i := range logs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("activity: insert log %d: %w", i, err)
		}
	}
	return results.Close()
}
