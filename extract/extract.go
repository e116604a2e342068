package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nadlan-scraper/fetcher"
	"nadlan-scraper/models"
)

// Cell positions inside a deal row, as rendered by the portal.
// mainTable__cell 0 is the row's expand control.
const (
	cellAddress = iota + 1
	cellAreaSqM
	cellDealDate
	cellPrice
	cellBlockParcel
	cellPropertyType
	cellRooms
	cellFloor
)

// Expanded-details cells (innerTable__cell). Cells 8 onward hold the parcel's
// earlier transactions as (date, price) pairs.
const (
	innerConstructionYear = 3
	innerPricePerSqM      = 4
	innerBuildingFloors   = 5
	innerHistoryStart     = 8
)

// Extractor parses one fetched row into transaction records. A row that
// carries several historical transactions yields one record per transaction.
type Extractor interface {
	Extract(row fetcher.Row, neighborhood string) ([]models.TransactionRecord, error)
}

// HTMLExtractor extracts records from the portal's table-row HTML.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract parses the row's cells into a base record, then expands the row's
// transaction history: each extra (date, price) pair becomes an additional
// record sharing the base fields.
func (e *HTMLExtractor) Extract(row fetcher.Row, neighborhood string) ([]models.TransactionRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(row.HTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse row html: %w", err)
	}

	cells := doc.Find(".mainTable__cell")
	base := models.TransactionRecord{
		Address:      cellText(cells, cellAddress),
		AreaSqM:      cellText(cells, cellAreaSqM),
		DealDate:     cellText(cells, cellDealDate),
		Price:        cellText(cells, cellPrice),
		BlockParcel:  cellText(cells, cellBlockParcel),
		PropertyType: cellText(cells, cellPropertyType),
		Rooms:        cellText(cells, cellRooms),
		Floor:        cellText(cells, cellFloor),
		Neighborhood: neighborhood,
	}

	if base.Address == "" && base.DealDate == "" && base.Price == "" {
		return nil, fmt.Errorf("extract: row has no deal cells")
	}

	inner := doc.Find(".innerTable__cell")
	base.ConstructionYear = cellText(inner, innerConstructionYear)
	base.PricePerSqM = cellText(inner, innerPricePerSqM)
	base.BuildingFloors = cellText(inner, innerBuildingFloors)

	records := []models.TransactionRecord{base}

	// Historical transactions on the same parcel: (date, price) pairs until
	// both come back empty.
	for k := 0; ; k++ {
		date := cellText(inner, innerHistoryStart+k*2)
		price := cellText(inner, innerHistoryStart+k*2+1)
		if date == "" && price == "" {
			break
		}

		extra := base
		if date != "" {
			extra.DealDate = date
		}
		if price != "" {
			extra.Price = price
		}
		records = append(records, extra)
	}

	return records, nil
}

func cellText(sel *goquery.Selection, idx int) string {
	if idx >= sel.Length() {
		return ""
	}
	return strings.TrimSpace(sel.Eq(idx).Text())
}
