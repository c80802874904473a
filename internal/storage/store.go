// Package storage persists aircraft state snapshots. The snapshot writer
// commits all rows of one processing cycle under a single batch value inside
// one transaction; the read path resolves the maximum batch in the same
// statement that selects its rows, so readers see either the previous
// complete batch or the new one, never a mix.
//
// SQLiteDB is the primary store. PostgresDB is a drop-in alternative for
// deployments where the reader and writer run on different hosts.
// ClickHouseDB is an append-only history archive, off the serving path.
package storage

import (
	"context"
	"time"

	"adsb_tracker/internal/adsb"
)

// batchLayout is a fixed-width UTC timestamp layout. The padding matters:
// batch values are compared as text by MAX(), and a fixed-width fraction
// makes lexicographic order match chronological order.
const batchLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewBatch returns a new batch value. Values are monotonically increasing
// timestamps; the writer assigns one per write cycle and never reuses it.
func NewBatch() string {
	return time.Now().UTC().Format(batchLayout)
}

// StoredState is one persisted aircraft state row: the reported state plus
// the store-assigned identity and the batch it was written under.
type StoredState struct {
	ID    int64  `json:"id"`
	Batch string `json:"update_batch"`
	adsb.State
}

// Store is the snapshot store used by the writer stage and the read path.
// CreateSchema is idempotent. InsertBatch writes all states under the given
// batch value in one transaction. FetchLatest returns every row of the
// maximum batch, or an empty slice when the store is empty.
type Store interface {
	CreateSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, batch string, states []adsb.State) error
	FetchLatest(ctx context.Context) ([]StoredState, error)
	Close() error
}
