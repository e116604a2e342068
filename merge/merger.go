package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nadlan-scraper/models"
	"nadlan-scraper/storage"
	"nadlan-scraper/utils"
)

// Report summarizes one merge run.
type Report struct {
	FilesRead  int
	InputRows  int
	Duplicates int
	Skipped    []string // files that could not be read
}

// Merger consolidates the per-neighborhood output files into one
// deduplicated dataset. A neighborhood file that is missing or corrupt is
// skipped, never fatal.
type Merger struct {
	logger *utils.Logger
}

// NewMerger creates a Merger.
func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge reads every CSV under dataDir, deduplicates first-occurrence-wins by
// the record key, writes the combined file to outputPath, and returns the
// combined records. Running it twice over the same inputs produces the same
// output.
func (m *Merger) Merge(dataDir, outputPath string) ([]models.TransactionRecord, *Report, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: read data dir %q: %w", dataDir, err)
	}

	absOutput, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: resolve output path: %w", err)
	}

	report := &Report{}
	seen := utils.NewKeySet()
	var combined []models.TransactionRecord

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dataDir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil && abs == absOutput {
			continue // never merge the combined file into itself
		}

		records, err := storage.ReadRecordsFile(path)
		if err != nil {
			m.logger.Warn("[merge] Skipping %s: %v", entry.Name(), err)
			report.Skipped = append(report.Skipped, entry.Name())
			continue
		}

		neighborhood := strings.TrimSuffix(entry.Name(), ".csv")
		for _, rec := range records {
			if rec.Neighborhood == "" {
				rec.Neighborhood = neighborhood
			}
			report.InputRows++
			if seen.Add(rec.Key()) {
				combined = append(combined, rec)
			} else {
				report.Duplicates++
			}
		}

		report.FilesRead++
		m.logger.Info("[merge] %s: %d records", entry.Name(), len(records))
	}

	if err := storage.WriteRecordsFile(outputPath, combined); err != nil {
		return nil, nil, fmt.Errorf("merge: write combined output: %w", err)
	}

	m.logger.Info("[merge] Combined %d files — %d rows in, %d unique out, %d duplicates dropped",
		report.FilesRead, report.InputRows, len(combined), report.Duplicates)
	for _, name := range report.Skipped {
		m.logger.Warn("[merge] Skipped unreadable file: %s", name)
	}

	return combined, report, nil
}
