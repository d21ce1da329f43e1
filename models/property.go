package models

import "time"

// PropertyLink is a discovered listing URL, tagged with the ZIP code whose
// search produced it. Links are deduplicated by URL within a run.
type PropertyLink struct {
	URL          string
	Zip          string
	DiscoveredAt time.Time
}

// PropertyRecord is the normalized output for one successfully parsed
// listing page. Optional numeric fields are nil when the page did not
// carry them; each absence is noted in Warnings.
type PropertyRecord struct {
	PropertyID   string
	URL          string
	Address      string
	Price        float64
	Status       string
	MLSNumber    string
	DaysOnMarket *int
	ViewCount    *int
	SaveCount    *int
	ExtractedAt  time.Time
	Warnings     []string
}

// FailureKind classifies why an item (a property URL or a whole ZIP
// search) produced no record.
type FailureKind string

const (
	FailTimeout          FailureKind = "timeout"
	FailHTTPError        FailureKind = "http_error"
	FailRateLimited      FailureKind = "rate_limited"
	FailMalformed        FailureKind = "malformed_response"
	FailMissingField     FailureKind = "missing_mandatory_field"
	FailUnparsable       FailureKind = "unparsable_content"
	FailDeadlineExceeded FailureKind = "deadline_exceeded"
)

// FailureRecord is the durable trace of one failed item. TargetID is the
// property URL, or the ZIP code for search-level failures.
type FailureRecord struct {
	TargetID   string
	Kind       FailureKind
	Detail     string
	OccurredAt time.Time
}

// RunStatus is the terminal state of one orchestrated run.
type RunStatus string

const (
	RunCompleted             RunStatus = "completed"
	RunCompletedWithFailures RunStatus = "completed_with_failures"
	RunAborted               RunStatus = "aborted"
)

// RunManifest summarizes one pipeline run. LinksFound always equals
// RecordsSucceeded+RecordsFailed on completion; ZIP-level search failures
// are tracked in the failures table but not in that accounting.
type RunManifest struct {
	RunDate          string    `json:"run_date"`
	Status           RunStatus `json:"status"`
	ZipCount         int       `json:"zip_count"`
	LinksFound       int       `json:"links_found"`
	RecordsSucceeded int       `json:"records_succeeded"`
	RecordsFailed    int       `json:"records_failed"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
}
