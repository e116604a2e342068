package worker

import (
	"context"
	"sync"

	"nadlan-scraper/checkpoint"
	"nadlan-scraper/config"
	"nadlan-scraper/extract"
	"nadlan-scraper/fetcher"
	"nadlan-scraper/models"
	"nadlan-scraper/storage"
	"nadlan-scraper/utils"
)

// Coordinator runs one Worker per neighborhood through a bounded pool.
// Workers are independent: a neighborhood that fails does not abort the
// others, and there is no cross-neighborhood ordering.
type Coordinator struct {
	cfg         *config.Config
	pool        fetcher.Pool
	extractor   extract.Extractor
	checkpoints *checkpoint.Store
	output      storage.RecordWriter
	logger      *utils.Logger
}

// NewCoordinator wires a Coordinator from its collaborators.
func NewCoordinator(cfg *config.Config, pool fetcher.Pool, extractor extract.Extractor,
	checkpoints *checkpoint.Store, output storage.RecordWriter, logger *utils.Logger) *Coordinator {

	return &Coordinator{
		cfg:         cfg,
		pool:        pool,
		extractor:   extractor,
		checkpoints: checkpoints,
		output:      output,
		logger:      logger,
	}
}

// Run fetches all targets with at most cfg.MaxConcurrency workers in flight
// and returns the outcome per neighborhood ID.
func (c *Coordinator) Run(ctx context.Context, targets []models.NeighborhoodTarget) map[string]models.Outcome {
	c.logger.Info("[coordinator] Fetching %d neighborhoods, concurrency %d", len(targets), c.cfg.MaxConcurrency)

	var mu sync.Mutex
	outcomes := make(map[string]models.Outcome, len(targets))

	pool := utils.NewWorkerPool(c.cfg.MaxConcurrency, c.cfg.RateLimitMs)
	for _, target := range targets {
		t := target
		pool.Submit(func() {
			w := NewWorker(c.cfg, t, c.pool, c.extractor, c.checkpoints, c.output, c.logger)
			out := w.Run(ctx)

			mu.Lock()
			outcomes[t.ID] = out
			mu.Unlock()
		})
	}
	pool.Wait()

	c.summarize(outcomes)
	return outcomes
}

func (c *Coordinator) summarize(outcomes map[string]models.Outcome) {
	done, failed, total := 0, 0, 0
	for _, out := range outcomes {
		total += out.Records
		if out.Status == models.StatusDone {
			done++
		} else {
			failed++
		}
	}

	c.logger.Info("[coordinator] Run finished — %d done, %d failed, %d records", done, failed, total)
	for _, out := range outcomes {
		c.logger.Info("[coordinator]   %s: %s (%d records)", out.Target.Name, out.Status, out.Records)
	}
	if failed > 0 {
		c.logger.Warn("[coordinator] %d neighborhoods failed; checkpoints kept, rerun fetch to resume", failed)
	}
}
