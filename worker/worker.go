package worker

import (
	"context"
	"fmt"
	"time"

	"nadlan-scraper/checkpoint"
	"nadlan-scraper/config"
	"nadlan-scraper/extract"
	"nadlan-scraper/fetcher"
	"nadlan-scraper/models"
	"nadlan-scraper/storage"
	"nadlan-scraper/utils"
)

// Worker drives the page loop for one neighborhood: fetch, extract,
// accumulate, persist, checkpoint — one page at a time, so a crash loses at
// most one page of work. A failed run leaves its last checkpoint in place
// and the next run resumes from there.
type Worker struct {
	target      models.NeighborhoodTarget
	pool        fetcher.Pool
	extractor   extract.Extractor
	checkpoints *checkpoint.Store
	output      storage.RecordWriter
	retry       *utils.RetryConfig
	maxPages    int
	logger      *utils.Logger
}

// NewWorker creates a worker for one neighborhood target.
func NewWorker(cfg *config.Config, target models.NeighborhoodTarget, pool fetcher.Pool,
	extractor extract.Extractor, checkpoints *checkpoint.Store,
	output storage.RecordWriter, logger *utils.Logger) *Worker {

	return &Worker{
		target:      target,
		pool:        pool,
		extractor:   extractor,
		checkpoints: checkpoints,
		output:      output,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Duration(cfg.RetryBaseMs) * time.Millisecond,
			Logger:      logger,
		},
		maxPages: cfg.MaxPages,
		logger:   logger,
	}
}

// Run executes the neighborhood's fetch to completion or failure.
func (w *Worker) Run(ctx context.Context) models.Outcome {
	records, seen, startPage := w.resume()

	session, err := w.pool.Acquire(ctx)
	if err != nil {
		return w.fail(records, fmt.Errorf("acquire fetch session: %w", err))
	}
	defer session.Close()

	duplicates := 0
	for page := startPage; page <= w.maxPages; page++ {
		var rows []fetcher.Row
		op := fmt.Sprintf("fetch %s page %d", w.target.Name, page)
		err := w.retry.Do(ctx, op, func() error {
			var fetchErr error
			rows, fetchErr = session.FetchPage(ctx, w.target.ID, page)
			return fetchErr
		})
		if err != nil {
			return w.fail(records, err)
		}

		if len(rows) == 0 {
			w.logger.Info("[worker] %s: no more data after page %d", w.target.Name, page-1)
			break
		}

		added := 0
		for _, row := range rows {
			recs, err := w.extractor.Extract(row, w.target.Name)
			if err != nil {
				w.logger.Warn("[worker] %s page %d: skipping row: %v", w.target.Name, page, err)
				continue
			}
			for _, rec := range recs {
				if seen.Add(rec.Key()) {
					records = append(records, rec)
					added++
				} else {
					duplicates++
				}
			}
		}

		if err := w.output.WriteSnapshot(w.target, records); err != nil {
			return w.fail(records, fmt.Errorf("write output: %w", err))
		}
		if err := w.checkpoints.Save(&models.Checkpoint{
			NeighborhoodID: w.target.ID,
			LastPage:       page,
			Records:        records,
		}); err != nil {
			return w.fail(records, fmt.Errorf("save checkpoint: %w", err))
		}

		w.logger.Info("[worker] %s: page %d done — %d new, %d total", w.target.Name, page, added, len(records))
	}

	if duplicates > 0 {
		w.logger.Info("[worker] %s: skipped %d duplicate transactions", w.target.Name, duplicates)
	}
	if err := w.checkpoints.Clear(w.target.ID); err != nil {
		w.logger.Warn("[worker] %s: could not clear checkpoint: %v", w.target.Name, err)
	}

	w.logger.Info("[worker] %s complete — %d unique records", w.target.Name, len(records))
	return models.Outcome{Target: w.target, Status: models.StatusDone, Records: len(records)}
}

// resume loads the neighborhood's checkpoint if one exists. On resume the
// output file is rewritten immediately so it matches the checkpoint's record
// set before any new page lands.
func (w *Worker) resume() ([]models.TransactionRecord, *utils.KeySet, int) {
	seen := utils.NewKeySet()

	cp, ok := w.checkpoints.Load(w.target.ID)
	if !ok {
		w.logger.Info("[worker] %s: starting fresh", w.target.Name)
		return nil, seen, 1
	}

	for _, rec := range cp.Records {
		seen.Add(rec.Key())
	}
	if err := w.output.WriteSnapshot(w.target, cp.Records); err != nil {
		w.logger.Warn("[worker] %s: could not rewrite output from checkpoint: %v", w.target.Name, err)
	}

	w.logger.Info("[worker] %s: resuming at page %d with %d records", w.target.Name, cp.LastPage+1, len(cp.Records))
	return cp.Records, seen, cp.LastPage + 1
}

func (w *Worker) fail(records []models.TransactionRecord, err error) models.Outcome {
	w.logger.Error("[worker] %s failed (progress preserved for resume): %v", w.target.Name, err)
	return models.Outcome{Target: w.target, Status: models.StatusFailed, Records: len(records), Err: err}
}
