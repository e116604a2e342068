package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nadlan-scraper/models"
	"nadlan-scraper/utils"
)

// Store persists per-neighborhood fetch progress as JSON files, one file per
// neighborhood ID. Saves are atomic (write-temp-then-rename), so a reader
// never observes a half-written checkpoint.
type Store struct {
	dir    string
	logger *utils.Logger
}

// NewStore creates the checkpoint directory if needed and returns a Store.
func NewStore(dir string, logger *utils.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir %q: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(neighborhoodID string) string {
	return filepath.Join(s.dir, "checkpoint_"+neighborhoodID+".json")
}

// Load returns the persisted checkpoint for a neighborhood, or ok=false when
// none exists. A corrupt or unreadable checkpoint is treated as absent: the
// fetch simply starts fresh.
func (s *Store) Load(neighborhoodID string) (*models.Checkpoint, bool) {
	data, err := os.ReadFile(s.path(neighborhoodID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("[checkpoint] Unreadable checkpoint for %s, starting fresh: %v", neighborhoodID, err)
		}
		return nil, false
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("[checkpoint] Corrupt checkpoint for %s, starting fresh: %v", neighborhoodID, err)
		return nil, false
	}
	if cp.LastPage < 1 {
		s.logger.Warn("[checkpoint] Invalid checkpoint for %s (last page %d), starting fresh", neighborhoodID, cp.LastPage)
		return nil, false
	}

	return &cp, true
}

// Save atomically replaces the checkpoint for cp's neighborhood.
func (s *Store) Save(cp *models.Checkpoint) error {
	cp.RecordCount = len(cp.Records)
	cp.SavedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", cp.NeighborhoodID, err)
	}

	final := s.path(cp.NeighborhoodID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp for %s: %w", cp.NeighborhoodID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("checkpoint: replace %s: %w", cp.NeighborhoodID, err)
	}
	return nil
}

// Clear removes a neighborhood's checkpoint. A missing file is not an error.
func (s *Store) Clear(neighborhoodID string) error {
	err := os.Remove(s.path(neighborhoodID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: clear %s: %w", neighborhoodID, err)
	}
	return nil
}
