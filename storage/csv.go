package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"nadlan-scraper/models"
)

// The portal data is Hebrew; files carry a UTF-8 BOM so spreadsheet tools
// detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore writes per-neighborhood record snapshots as CSV files, one file
// per neighborhood named after its display name.
type CSVStore struct {
	dir string
}

// NewCSVStore creates the data directory if needed and returns a CSVStore.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create data dir %q: %w", dir, err)
	}
	return &CSVStore{dir: dir}, nil
}

// Path returns the output file path for a neighborhood.
func (s *CSVStore) Path(target models.NeighborhoodTarget) string {
	return filepath.Join(s.dir, target.Name+".csv")
}

// WriteSnapshot atomically replaces the neighborhood's output file with the
// given record set.
func (s *CSVStore) WriteSnapshot(target models.NeighborhoodTarget, records []models.TransactionRecord) error {
	return WriteRecordsFile(s.Path(target), records)
}

// WriteRecordsFile writes header + records to path via a temp file and
// rename, so a concurrent reader never sees a partial file.
func WriteRecordsFile(path string, records []models.TransactionRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(models.CSVHeader()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.CSVRow()); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("csv: write temp for %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("csv: replace %q: %w", path, err)
	}
	return nil
}

// ReadRecordsFile parses a record file written by WriteRecordsFile.
func ReadRecordsFile(path string) ([]models.TransactionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csv: read %q: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %q: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv: %q has no header row", path)
	}
	if len(rows[0]) != len(models.CSVHeader()) {
		return nil, fmt.Errorf("csv: %q has %d header columns, want %d", path, len(rows[0]), len(models.CSVHeader()))
	}

	records := make([]models.TransactionRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := models.RecordFromCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("csv: %q row %d: %w", path, i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
