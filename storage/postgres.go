package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"nadlan-scraper/models"
)

// PostgresWriter persists the combined deal dataset to PostgreSQL. The dedup
// key is UNIQUE, so re-running combine against the same database is a no-op
// for already-stored deals.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS deals (
			id                SERIAL PRIMARY KEY,
			dedup_key         VARCHAR(32) UNIQUE NOT NULL,
			address           TEXT NOT NULL,
			area_sqm          TEXT NOT NULL DEFAULT '',
			deal_date         TEXT NOT NULL DEFAULT '',
			price             TEXT NOT NULL DEFAULT '',
			block_parcel      TEXT NOT NULL DEFAULT '',
			property_type     TEXT NOT NULL DEFAULT '',
			rooms             TEXT NOT NULL DEFAULT '',
			floor             TEXT NOT NULL DEFAULT '',
			construction_year TEXT NOT NULL DEFAULT '',
			price_per_sqm     TEXT NOT NULL DEFAULT '',
			building_floors   TEXT NOT NULL DEFAULT '',
			neighborhood      TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_deals_neighborhood ON deals(neighborhood);
		CREATE INDEX IF NOT EXISTS idx_deals_deal_date    ON deals(deal_date);
	`)
	return err
}

// Write batch-inserts the combined records, skipping deals already stored.
func (pw *PostgresWriter) Write(records []models.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.insertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []models.TransactionRecord) error {
	const cols = 13
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, r := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := 0; j < cols; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			r.Key(), r.Address, r.AreaSqM, r.DealDate, r.Price, r.BlockParcel,
			r.PropertyType, r.Rooms, r.Floor, r.ConstructionYear, r.PricePerSqM,
			r.BuildingFloors, r.Neighborhood)
	}

	query := fmt.Sprintf(`
		INSERT INTO deals (dedup_key, address, area_sqm, deal_date, price, block_parcel,
			property_type, rooms, floor, construction_year, price_per_sqm,
			building_floors, neighborhood)
		VALUES %s
		ON CONFLICT (dedup_key) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
