package storage

import "nadlan-scraper/models"

// RecordWriter persists a neighborhood's current record set. Implementations
// must replace the previous snapshot wholesale so the file always matches the
// worker's checkpoint.
type RecordWriter interface {
	WriteSnapshot(target models.NeighborhoodTarget, records []models.TransactionRecord) error
}

// DealWriter is the interface for durable sinks of the combined dataset.
type DealWriter interface {
	Write(records []models.TransactionRecord) error
	Close() error
}
