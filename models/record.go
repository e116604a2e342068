package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// NeighborhoodTarget identifies one query partition on the nadlan.gov.il
// portal. The ID is the portal's internal neighborhood identifier.
type NeighborhoodTarget struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// TransactionRecord is one real-estate deal as listed on the portal.
// All fields are kept as the raw portal strings; numeric parsing happens
// only where a consumer needs numbers (see services.InsightService).
type TransactionRecord struct {
	Address          string `json:"address"`
	AreaSqM          string `json:"area_sqm"`
	DealDate         string `json:"deal_date"`
	Price            string `json:"price"`
	BlockParcel      string `json:"block_parcel"`
	PropertyType     string `json:"property_type"`
	Rooms            string `json:"rooms"`
	Floor            string `json:"floor"`
	ConstructionYear string `json:"construction_year"`
	PricePerSqM      string `json:"price_per_sqm"`
	BuildingFloors   string `json:"building_floors"`
	Neighborhood     string `json:"neighborhood"`
}

// Key returns the deduplication identity of a record: two records with the
// same (address, deal date, price, block/parcel) tuple are the same deal.
func (r TransactionRecord) Key() string {
	sum := md5.Sum([]byte(r.Address + "-" + r.DealDate + "-" + r.Price + "-" + r.BlockParcel))
	return hex.EncodeToString(sum[:])
}

// CSVHeader returns the portal's field names, in output-column order.
func CSVHeader() []string {
	return []string{
		"כתובת", "מ\"ר", "תאריך עסקה", "מחיר", "גוש/חלקה/תת-חלקה",
		"סוג נכס", "חדרים", "קומה", "שנת בנייה", "מחיר למ\"ר",
		"קומות במבנה", "שכונה",
	}
}

// CSVRow returns the record's values in the same order as CSVHeader.
func (r TransactionRecord) CSVRow() []string {
	return []string{
		r.Address, r.AreaSqM, r.DealDate, r.Price, r.BlockParcel,
		r.PropertyType, r.Rooms, r.Floor, r.ConstructionYear, r.PricePerSqM,
		r.BuildingFloors, r.Neighborhood,
	}
}

// RecordFromCSVRow rebuilds a record from a CSVRow-ordered slice.
func RecordFromCSVRow(row []string) (TransactionRecord, error) {
	if len(row) != len(CSVHeader()) {
		return TransactionRecord{}, fmt.Errorf("record row has %d columns, want %d", len(row), len(CSVHeader()))
	}
	return TransactionRecord{
		Address:          row[0],
		AreaSqM:          row[1],
		DealDate:         row[2],
		Price:            row[3],
		BlockParcel:      row[4],
		PropertyType:     row[5],
		Rooms:            row[6],
		Floor:            row[7],
		ConstructionYear: row[8],
		PricePerSqM:      row[9],
		BuildingFloors:   row[10],
		Neighborhood:     row[11],
	}, nil
}

// Checkpoint is the durable fetch-progress marker for one neighborhood.
// It is overwritten after every successfully processed page, so the record
// set it carries is always consistent with LastPage.
type Checkpoint struct {
	NeighborhoodID string              `json:"neighborhood_id"`
	LastPage       int                 `json:"last_page"`
	Records        []TransactionRecord `json:"records"`
	RecordCount    int                 `json:"record_count"`
	SavedAt        time.Time           `json:"saved_at"`
}

// Status is the terminal state of one neighborhood's fetch.
type Status string

const (
	StatusDone   Status = "DONE"
	StatusFailed Status = "FAILED"
)

// Outcome is the per-neighborhood result reported by the coordinator.
type Outcome struct {
	Target  NeighborhoodTarget
	Status  Status
	Records int
	Err     error
}

// InsightReport holds the computed statistics over a merged dataset.
type InsightReport struct {
	TotalDeals          int
	DealsByNeighborhood map[string]int
	AveragePrice        float64
	MinPrice            float64
	MaxPrice            float64
	AveragePricePerSqM  float64
	MostExpensive       *TransactionRecord
}
