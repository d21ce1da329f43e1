package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zillow-scraper/config"
	"zillow-scraper/fetch"
	"zillow-scraper/models"
	"zillow-scraper/runner"
	"zillow-scraper/scraper/zillow"
	"zillow-scraper/storage"
	"zillow-scraper/utils"
)

// Orchestrator composes one pipeline run: link collection across the
// metro's ZIP codes, concurrent fetch+extract over the merged link set,
// and durable output. It holds no state across runs; the caller decides
// when a run happens.
type Orchestrator struct {
	cfg       *config.Config
	client    fetch.Client
	collector *zillow.Collector
	extractor *zillow.Extractor
	writer    storage.RunWriter
	insights  *InsightService
	logger    *utils.Logger
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(cfg *config.Config, client fetch.Client, writer storage.RunWriter, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		collector: zillow.NewCollector(client, logger, cfg.MaxPages),
		extractor: zillow.NewExtractor(logger),
		writer:    writer,
		insights:  NewInsightService(logger),
		logger:    logger,
	}
}

// Run executes one full scrape over zipTargets and returns the finalized
// manifest. A non-nil error means the run aborted; the manifest then
// carries RunAborted and nothing beyond already-flushed output exists.
func (o *Orchestrator) Run(ctx context.Context, zipTargets []string) (*models.RunManifest, error) {
	started := time.Now()
	manifest := &models.RunManifest{
		RunDate:   started.Format("2006-01-02"),
		Status:    models.RunAborted,
		ZipCount:  len(zipTargets),
		StartedAt: started,
	}

	if len(zipTargets) == 0 {
		manifest.EndedAt = time.Now()
		return manifest, errors.New("orchestrator: no ZIP targets configured")
	}

	if o.cfg.RunDeadlineMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.RunDeadlineMinutes)*time.Minute)
		defer cancel()
	}

	o.logger.Info("[run] starting — %d ZIP codes, %d workers", len(zipTargets), o.cfg.MaxWorkers)

	links, zipFailures := o.collectAll(ctx, zipTargets)
	manifest.LinksFound = len(links)
	o.logger.Info("[run] link collection done — %d links, %d ZIP failures", len(links), len(zipFailures))

	acc := runner.NewAccumulator()
	for _, f := range zipFailures {
		acc.AddFailure(f)
	}
	runner.Run(ctx, links, o.processLink, o.cfg.MaxWorkers, acc)

	records := acc.Records()
	failures := acc.Failures()
	manifest.RecordsSucceeded = len(records)
	manifest.RecordsFailed = len(failures) - len(zipFailures)

	if err := o.writer.WriteRecords(records); err != nil {
		manifest.EndedAt = time.Now()
		return manifest, fmt.Errorf("orchestrator: write records: %w", err)
	}
	if err := o.writer.WriteFailures(failures); err != nil {
		manifest.EndedAt = time.Now()
		return manifest, fmt.Errorf("orchestrator: write failures: %w", err)
	}

	if len(failures) > 0 {
		manifest.Status = models.RunCompletedWithFailures
	} else {
		manifest.Status = models.RunCompleted
	}
	manifest.EndedAt = time.Now()

	if err := o.writer.WriteManifest(manifest); err != nil {
		manifest.Status = models.RunAborted
		return manifest, fmt.Errorf("orchestrator: write manifest: %w", err)
	}

	o.logger.Info("[run] %s — %d succeeded, %d failed, took %v",
		manifest.Status, manifest.RecordsSucceeded, manifest.RecordsFailed,
		manifest.EndedAt.Sub(manifest.StartedAt).Round(time.Second))
	o.insights.Print(o.insights.Generate(records))
	return manifest, nil
}

// collectAll runs link collection for every ZIP in a bounded pool and
// merges the results, deduplicating across ZIP boundaries. A failed ZIP
// contributes a FailureRecord instead of aborting the run.
func (o *Orchestrator) collectAll(ctx context.Context, zipTargets []string) ([]models.PropertyLink, []*models.FailureRecord) {
	var (
		mu       sync.Mutex
		links    []models.PropertyLink
		failures []*models.FailureRecord
	)
	global := utils.NewLinkSet()
	pool := utils.NewWorkerPool(o.cfg.MaxWorkers)

	for _, zipCode := range zipTargets {
		z := zipCode
		pool.Submit(func() {
			zipLinks, failure := o.collector.CollectLinks(ctx, z)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failures = append(failures, failure)
				return
			}
			for _, l := range zipLinks {
				if global.Add(l.URL) {
					links = append(links, l)
				}
			}
		})
	}
	pool.Wait()

	return links, failures
}

// processLink fetches and extracts one property page. Exactly one of the
// return values is non-nil.
func (o *Orchestrator) processLink(ctx context.Context, link models.PropertyLink) (*models.PropertyRecord, *models.FailureRecord) {
	html, err := o.client.Fetch(ctx, link.URL)
	if err != nil {
		f := fetch.AsFailure(err)
		return nil, &models.FailureRecord{
			TargetID:   link.URL,
			Kind:       f.Kind,
			Detail:     f.Detail,
			OccurredAt: time.Now(),
		}
	}

	record, err := o.extractor.Extract(link.URL, html)
	if err != nil {
		var xe *zillow.ExtractionError
		kind := models.FailUnparsable
		detail := err.Error()
		if errors.As(err, &xe) {
			kind = xe.Kind
			detail = xe.Detail
		}
		return nil, &models.FailureRecord{
			TargetID:   link.URL,
			Kind:       kind,
			Detail:     detail,
			OccurredAt: time.Now(),
		}
	}
	return record, nil
}
