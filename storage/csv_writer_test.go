package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zillow-scraper/models"
)

func sampleRecords() []*models.PropertyRecord {
	views := 120
	return []*models.PropertyRecord{
		{
			PropertyID:  "111",
			URL:         "https://www.zillow.com/homedetails/1/111_zpid/",
			Address:     "1 Main St, Boston, MA",
			Price:       450000,
			Status:      "For sale",
			MLSNumber:   "73000001",
			ViewCount:   &views,
			ExtractedAt: time.Now(),
		},
		{
			PropertyID:  "222",
			URL:         "https://www.zillow.com/homedetails/2/222_zpid/",
			Address:     "2 Oak Ave, Boston, MA",
			Price:       615500,
			Status:      "Pending",
			ExtractedAt: time.Now(),
			Warnings:    []string{"save_count absent"},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestCSVRunWriterWritesPartitionedOutputs(t *testing.T) {
	base := t.TempDir()
	w, err := NewCSVRunWriter(base, "2026-08-31")
	if err != nil {
		t.Fatalf("NewCSVRunWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteRecords(sampleRecords()); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	if err := w.WriteFailures([]*models.FailureRecord{
		{TargetID: "02199", Kind: models.FailHTTPError, Detail: "503", OccurredAt: time.Now()},
	}); err != nil {
		t.Fatalf("WriteFailures: %v", err)
	}

	rows := readCSV(t, filepath.Join(base, "2026-08-31", "records.csv"))
	if len(rows) != 3 { // header + 2 records
		t.Fatalf("record rows: got %d, want 3", len(rows))
	}
	if rows[0][0] != "property_id" {
		t.Errorf("header: got %v", rows[0])
	}
	if rows[1][0] != "111" || rows[1][7] != "120" {
		t.Errorf("first record row: got %v", rows[1])
	}
	if rows[2][8] != "" {
		t.Errorf("absent save count must serialize empty, got %q", rows[2][8])
	}

	frows := readCSV(t, filepath.Join(base, "2026-08-31", "failures.csv"))
	if len(frows) != 2 {
		t.Fatalf("failure rows: got %d, want 2", len(frows))
	}
}

func TestCSVRunWriterIdempotentWithinProcess(t *testing.T) {
	base := t.TempDir()
	w, err := NewCSVRunWriter(base, "2026-08-31")
	if err != nil {
		t.Fatalf("NewCSVRunWriter: %v", err)
	}
	defer w.Close()

	records := sampleRecords()
	if err := w.WriteRecords(records); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecords(records); err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(base, "2026-08-31", "records.csv"))
	if len(rows) != 3 {
		t.Errorf("record rows after double write: got %d, want 3", len(rows))
	}
}

func TestCSVRunWriterIdempotentAcrossReopen(t *testing.T) {
	base := t.TempDir()
	records := sampleRecords()

	w, err := NewCSVRunWriter(base, "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecords(records[:1]); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// A retried run for the same date must not duplicate the first row.
	w2, err := NewCSVRunWriter(base, "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if err := w2.WriteRecords(records); err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(base, "2026-08-31", "records.csv"))
	if len(rows) != 3 {
		t.Errorf("record rows after reopen: got %d, want 3 (header + 2 unique)", len(rows))
	}
}

func TestCSVRunWriterManifest(t *testing.T) {
	base := t.TempDir()
	w, err := NewCSVRunWriter(base, "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	manifest := &models.RunManifest{
		RunDate:          "2026-08-31",
		Status:           models.RunCompletedWithFailures,
		ZipCount:         2,
		LinksFound:       10,
		RecordsSucceeded: 8,
		RecordsFailed:    2,
		StartedAt:        time.Now().Add(-time.Minute),
		EndedAt:          time.Now(),
	}
	if err := w.WriteManifest(manifest); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "2026-08-31", "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var got models.RunManifest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if got.Status != models.RunCompletedWithFailures || got.LinksFound != 10 {
		t.Errorf("manifest round trip: got %+v", got)
	}
	if got.LinksFound != got.RecordsSucceeded+got.RecordsFailed {
		t.Errorf("manifest counts do not reconcile: %+v", got)
	}
}
