package storage

import "zillow-scraper/models"

// RunWriter is the interface any durable output backend must satisfy.
// Writes must be idempotent per run date: re-writing the same rows after a
// partial prior write must not duplicate them.
type RunWriter interface {
	WriteRecords(records []*models.PropertyRecord) error
	WriteFailures(failures []*models.FailureRecord) error
	WriteManifest(manifest *models.RunManifest) error
	Close() error
}
