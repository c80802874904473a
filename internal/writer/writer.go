// Package writer implements the snapshot-writer stage: it consumes raw
// fetch results, validates every state vector, and persists the valid ones
// as one logically-atomic batch so the read path never observes a mix of
// old and new records.
//
// Error policy: a malformed message is logged and discarded; an invalid
// state vector is logged and skipped while the rest of the message still
// commits; a store failure is logged and the message skipped. No pipeline
// error stops consumption.
package writer

import (
	"context"
	"log"

	"adsb_tracker/internal/adsb"
	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/storage"
)

// Archive receives a copy of every committed batch. Optional; failures are
// logged and never fail the primary write.
type Archive interface {
	AppendBatch(ctx context.Context, batch string, states []adsb.State) error
}

// Stage is the snapshot-writer stage. Create with New, then Run.
type Stage struct {
	store   storage.Store
	archive Archive
	cons    broker.Consumer
	queue   string
}

// New creates the stage. archive may be nil.
func New(store storage.Store, cons broker.Consumer, queue string, archive Archive) *Stage {
	return &Stage{store: store, archive: archive, cons: cons, queue: queue}
}

// Run ensures the schema exists, then consumes fetch results until ctx is
// cancelled. An in-flight write cycle finishes before Run returns.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.store.CreateSchema(ctx); err != nil {
		return err
	}
	return s.cons.Consume(ctx, s.queue, func(payload []byte) {
		s.handleMessage(ctx, payload)
	})
}

// handleMessage performs one write cycle for one fetch-result message.
func (s *Stage) handleMessage(ctx context.Context, payload []byte) {
	fr, err := adsb.DecodeFetchResult(payload)
	if err != nil {
		log.Printf("writer: dropping malformed message: %v", err)
		return
	}

	states := make([]adsb.State, 0, len(fr.States))
	for i, tuple := range fr.States {
		st, err := adsb.FromTuple(tuple)
		if err != nil {
			log.Printf("writer: skipping state %d: %v", i, err)
			continue
		}
		states = append(states, *st)
	}
	if len(states) == 0 {
		log.Printf("writer: message had no valid states, nothing written")
		return
	}

	batch := storage.NewBatch()
	if err := s.store.InsertBatch(ctx, batch, states); err != nil {
		log.Printf("writer: batch %s failed, skipping message: %v", batch, err)
		return
	}
	log.Printf("writer: committed batch %s with %d states", batch, len(states))

	if s.archive != nil {
		if err := s.archive.AppendBatch(ctx, batch, states); err != nil {
			log.Printf("writer: history archive append failed for batch %s: %v", batch, err)
		}
	}
}
