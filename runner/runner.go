// Package runner dispatches per-link fetch+extract work across a bounded
// worker pool, isolating each item's failure and guaranteeing that every
// dispatched link is accounted for as exactly one record or one failure.
package runner

import (
	"context"
	"sync"
	"time"

	"zillow-scraper/models"
	"zillow-scraper/utils"
)

// ProcessFunc turns one property link into a record or a failure. Exactly
// one of the return values must be non-nil.
type ProcessFunc func(ctx context.Context, link models.PropertyLink) (*models.PropertyRecord, *models.FailureRecord)

// Accumulator is the concurrency-safe sink for run results. It is passed
// in explicitly so the pipeline stays reentrant across runs in one
// process.
type Accumulator struct {
	mu       sync.Mutex
	records  []*models.PropertyRecord
	failures []*models.FailureRecord
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AddRecord appends a successful record.
func (a *Accumulator) AddRecord(r *models.PropertyRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

// AddFailure appends a failure record.
func (a *Accumulator) AddFailure(f *models.FailureRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, f)
}

// Records returns the accumulated successful records.
func (a *Accumulator) Records() []*models.PropertyRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.PropertyRecord(nil), a.records...)
}

// Failures returns the accumulated failure records.
func (a *Accumulator) Failures() []*models.FailureRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.FailureRecord(nil), a.failures...)
}

// Run processes every link with at most maxWorkers in flight and blocks
// until all of them have landed in the accumulator. Links still pending
// when ctx is done are recorded as deadline failures rather than dropped,
// so len(links) == records + failures always holds for the links passed
// in.
func Run(ctx context.Context, links []models.PropertyLink, process ProcessFunc, maxWorkers int, acc *Accumulator) {
	pool := utils.NewWorkerPool(maxWorkers)

	for _, link := range links {
		l := link

		if ctx.Err() != nil {
			acc.AddFailure(deadlineFailure(l))
			continue
		}

		pool.Submit(func() {
			if ctx.Err() != nil {
				acc.AddFailure(deadlineFailure(l))
				return
			}

			record, failure := process(ctx, l)
			switch {
			case record != nil:
				acc.AddRecord(record)
			case failure != nil:
				acc.AddFailure(failure)
			default:
				// A ProcessFunc returning neither would break the
				// one-outcome-per-link accounting; record it as a failure.
				acc.AddFailure(&models.FailureRecord{
					TargetID:   l.URL,
					Kind:       models.FailUnparsable,
					Detail:     "processor returned no outcome",
					OccurredAt: time.Now(),
				})
			}
		})
	}

	pool.Wait()
}

func deadlineFailure(link models.PropertyLink) *models.FailureRecord {
	return &models.FailureRecord{
		TargetID:   link.URL,
		Kind:       models.FailDeadlineExceeded,
		Detail:     "run deadline elapsed before processing",
		OccurredAt: time.Now(),
	}
}
