package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"zillow-scraper/models"
)

var recordsHeader = []string{
	"property_id", "url", "address", "price", "status", "mls_number",
	"days_on_market", "view_count", "save_count", "extracted_at", "warnings",
}

var failuresHeader = []string{"target_id", "kind", "detail", "occurred_at"}

// CSVRunWriter writes one run's outputs under <baseDir>/<runDate>/:
// records.csv, failures.csv, and manifest.json. Appends are keyed on the
// row identifier, so retrying a partially written run never duplicates
// rows. It is safe for concurrent use.
type CSVRunWriter struct {
	mu  sync.Mutex
	dir string

	recordsFile  *os.File
	recordsCSV   *csv.Writer
	failuresFile *os.File
	failuresCSV  *csv.Writer

	seenRecords  map[string]struct{}
	seenFailures map[string]struct{}
}

// NewCSVRunWriter opens (creating if needed) the run partition for
// runDate. Existing rows from a prior partial write are indexed so they
// are not written again.
func NewCSVRunWriter(baseDir, runDate string) (*CSVRunWriter, error) {
	dir := filepath.Join(baseDir, runDate)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create run dir: %w", err)
	}

	w := &CSVRunWriter{
		dir:          dir,
		seenRecords:  make(map[string]struct{}),
		seenFailures: make(map[string]struct{}),
	}

	var err error
	w.recordsFile, w.recordsCSV, err = openAppendCSV(
		filepath.Join(dir, "records.csv"), recordsHeader, w.seenRecords, recordKeyFromRow)
	if err != nil {
		return nil, err
	}

	w.failuresFile, w.failuresCSV, err = openAppendCSV(
		filepath.Join(dir, "failures.csv"), failuresHeader, w.seenFailures, failureKeyFromRow)
	if err != nil {
		_ = w.recordsFile.Close()
		return nil, err
	}

	return w, nil
}

// openAppendCSV opens path for appending, writing the header if the file
// is new and seeding the seen-key index from any existing rows.
func openAppendCSV(path string, header []string, seen map[string]struct{}, keyFn func([]string) string) (*os.File, *csv.Writer, error) {
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("storage: read existing %s: %w", filepath.Base(path), err)
		}
		for i, row := range rows {
			if i == 0 {
				continue // header
			}
			if key := keyFn(row); key != "" {
				seen[key] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: open %s: %w", filepath.Base(path), err)
	}

	w := csv.NewWriter(f)
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("storage: write header: %w", err)
		}
		w.Flush()
	}
	return f, w, nil
}

func recordKeyFromRow(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func failureKeyFromRow(row []string) string {
	if len(row) < 2 {
		return ""
	}
	return row[0] + "|" + row[1]
}

// WriteRecords appends records not already present in this run partition.
func (w *CSVRunWriter) WriteRecords(records []*models.PropertyRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range records {
		if _, dup := w.seenRecords[r.PropertyID]; dup {
			continue
		}
		row := []string{
			r.PropertyID,
			r.URL,
			r.Address,
			strconv.FormatFloat(r.Price, 'f', -1, 64),
			r.Status,
			r.MLSNumber,
			formatCount(r.DaysOnMarket),
			formatCount(r.ViewCount),
			formatCount(r.SaveCount),
			r.ExtractedAt.Format(time.RFC3339),
			strings.Join(r.Warnings, "; "),
		}
		if err := w.recordsCSV.Write(row); err != nil {
			return fmt.Errorf("storage: write record row: %w", err)
		}
		w.seenRecords[r.PropertyID] = struct{}{}
	}

	w.recordsCSV.Flush()
	return w.recordsCSV.Error()
}

// WriteFailures appends failures, keyed by target and kind.
func (w *CSVRunWriter) WriteFailures(failures []*models.FailureRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, f := range failures {
		key := f.TargetID + "|" + string(f.Kind)
		if _, dup := w.seenFailures[key]; dup {
			continue
		}
		row := []string{
			f.TargetID,
			string(f.Kind),
			f.Detail,
			f.OccurredAt.Format(time.RFC3339),
		}
		if err := w.failuresCSV.Write(row); err != nil {
			return fmt.Errorf("storage: write failure row: %w", err)
		}
		w.seenFailures[key] = struct{}{}
	}

	w.failuresCSV.Flush()
	return w.failuresCSV.Error()
}

// WriteManifest writes (or replaces) the run manifest summary.
func (w *CSVRunWriter) WriteManifest(manifest *models.RunManifest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, "manifest.json"), data, 0644); err != nil {
		return fmt.Errorf("storage: write manifest: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying files.
func (w *CSVRunWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recordsCSV.Flush()
	w.failuresCSV.Flush()

	err := w.recordsFile.Close()
	if cerr := w.failuresFile.Close(); err == nil {
		err = cerr
	}
	return err
}

func formatCount(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

var _ RunWriter = (*CSVRunWriter)(nil)
