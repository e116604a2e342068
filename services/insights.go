package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"nadlan-scraper/models"
	"nadlan-scraper/utils"
)

// numberRegexp captures a numeric value with optional thousands separators,
// as the portal renders prices ("1,480,000 ₪") and areas.
var numberRegexp = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)

// InsightService computes summary statistics over a merged dataset.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService with the given logger.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the report. Records whose price fails to parse are
// counted but excluded from the price statistics.
func (s *InsightService) Generate(records []models.TransactionRecord) *models.InsightReport {
	report := &models.InsightReport{
		DealsByNeighborhood: make(map[string]int),
	}

	if len(records) == 0 {
		return report
	}

	report.TotalDeals = len(records)

	var priceTotal, ppsmTotal float64
	priced, ppsmCount := 0, 0

	for i := range records {
		r := records[i]
		if r.Neighborhood != "" {
			report.DealsByNeighborhood[r.Neighborhood]++
		}

		price := parseNumber(r.Price)
		if price > 0 {
			priceTotal += price
			priced++
			if priced == 1 || price < report.MinPrice {
				report.MinPrice = price
			}
			if price > report.MaxPrice {
				report.MaxPrice = price
				report.MostExpensive = &records[i]
			}
		}

		if ppsm := parseNumber(r.PricePerSqM); ppsm > 0 {
			ppsmTotal += ppsm
			ppsmCount++
		}
	}

	if priced > 0 {
		report.AveragePrice = priceTotal / float64(priced)
	}
	if ppsmCount > 0 {
		report.AveragePricePerSqM = ppsmTotal / float64(ppsmCount)
	}

	return report
}

// Print writes a human-readable report to stdout.
func (s *InsightService) Print(report *models.InsightReport) {
	fmt.Println("\n===== Dataset Insights =====")
	fmt.Printf("Total deals:        %d\n", report.TotalDeals)
	if report.AveragePrice > 0 {
		fmt.Printf("Average price:      ₪%.0f\n", report.AveragePrice)
		fmt.Printf("Price range:        ₪%.0f – ₪%.0f\n", report.MinPrice, report.MaxPrice)
	}
	if report.AveragePricePerSqM > 0 {
		fmt.Printf("Average price/m²:   ₪%.0f\n", report.AveragePricePerSqM)
	}
	if report.MostExpensive != nil {
		fmt.Printf("Most expensive:     %s (%s, %s)\n",
			report.MostExpensive.Address, report.MostExpensive.Neighborhood, report.MostExpensive.Price)
	}

	if len(report.DealsByNeighborhood) > 0 {
		fmt.Println("Deals by neighborhood:")
		names := make([]string, 0, len(report.DealsByNeighborhood))
		for name := range report.DealsByNeighborhood {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return report.DealsByNeighborhood[names[i]] > report.DealsByNeighborhood[names[j]]
		})
		for _, name := range names {
			fmt.Printf("  %-24s %d\n", name, report.DealsByNeighborhood[name])
		}
	}
	fmt.Println()
}

// parseNumber extracts a float from a raw portal value, tolerating currency
// symbols and thousands separators. Returns 0 when nothing parses.
func parseNumber(raw string) float64 {
	match := numberRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return val
}
