// Package fetcher implements the external-fetch stage of the pipeline: it
// consumes region messages, requests current state vectors for each region
// from the external data source, and forwards the raw result payloads to
// the fetch-results queue.
//
// Message receipt is decoupled from the slow external call by a bounded
// worker pool, so one stalled request does not block delivery of other
// regions. A region whose fetch fails is routed to a dead-letter queue and
// dropped from the main flow; the next poll cycle re-requests it naturally.
package fetcher

import (
	"context"
	"log"
	"sync"

	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/region"
)

// DefaultWorkers is the fetch concurrency used when the configuration does
// not say otherwise.
const DefaultWorkers = 4

// Source issues one external request for one region and returns the raw
// result payload.
type Source interface {
	FetchStates(ctx context.Context, r region.Region) ([]byte, error)
}

// Config holds the stage's queue names and concurrency.
type Config struct {
	InQueue         string // region messages
	OutQueue        string // raw fetch results
	DeadLetterQueue string // failed regions; empty disables dead-lettering
	Workers         int
}

// Stage is the external-fetch stage. Create with New, then Run.
type Stage struct {
	src  Source
	pub  broker.Publisher
	cons broker.Consumer
	cfg  Config
	work chan region.Region
}

// New creates the stage. pub and cons are usually the same gateway, split
// so tests can substitute either side.
func New(src Source, pub broker.Publisher, cons broker.Consumer, cfg Config) *Stage {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Stage{
		src:  src,
		pub:  pub,
		cons: cons,
		cfg:  cfg,
		work: make(chan region.Region, cfg.Workers*2),
	}
}

// Run consumes region messages until ctx is cancelled, then waits for
// in-flight fetches to finish.
func (s *Stage) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	err := s.cons.Consume(ctx, s.cfg.InQueue, func(payload []byte) {
		s.handle(ctx, payload)
	})

	wg.Wait()
	return err
}

// handle decodes one region message and hands it to the pool. Malformed
// payloads are logged and dropped; the consumer keeps running.
func (s *Stage) handle(ctx context.Context, payload []byte) {
	r, err := region.Unmarshal(payload)
	if err != nil {
		log.Printf("fetcher: dropping malformed region message: %v", err)
		return
	}

	select {
	case s.work <- r:
	case <-ctx.Done():
	}
}

func (s *Stage) worker(ctx context.Context) {
	for {
		select {
		case r := <-s.work:
			s.process(ctx, r)
		case <-ctx.Done():
			return
		}
	}
}

// process performs one external fetch and forwards the result. The source
// enforces the per-call timeout.
func (s *Stage) process(ctx context.Context, r region.Region) {
	payload, err := s.src.FetchStates(ctx, r)
	if err != nil {
		log.Printf("fetcher: fetch failed for region %+v: %v", r, err)
		s.deadLetter(ctx, r)
		return
	}

	if err := s.pub.Enqueue(ctx, s.cfg.OutQueue, payload); err != nil {
		log.Printf("fetcher: publish failed for region %+v: %v", r, err)
		s.deadLetter(ctx, r)
	}
}

func (s *Stage) deadLetter(ctx context.Context, r region.Region) {
	if s.cfg.DeadLetterQueue == "" {
		return
	}
	payload, err := r.Marshal()
	if err != nil {
		return
	}
	if err := s.pub.Enqueue(ctx, s.cfg.DeadLetterQueue, payload); err != nil {
		log.Printf("fetcher: dead-letter publish failed for region %+v: %v", r, err)
	}
}
