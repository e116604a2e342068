package services

import (
	"testing"

	"nadlan-scraper/models"
	"nadlan-scraper/utils"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1,480,000", 1480000},
		{"1,480,000 ₪", 1480000},
		{"₪ 980,000", 980000},
		{"18,048.5", 18048.5},
		{"82", 82},
		{"", 0},
		{"לא ידוע", 0},
	}

	for _, tt := range tests {
		if got := parseNumber(tt.raw); got != tt.want {
			t.Errorf("parseNumber(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestInsightsGenerate(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())

	records := []models.TransactionRecord{
		{Address: "a", Price: "1,000,000", PricePerSqM: "10,000", Neighborhood: "נווה פז"},
		{Address: "b", Price: "2,000,000", PricePerSqM: "20,000", Neighborhood: "נווה פז"},
		{Address: "c", Price: "3,000,000", Neighborhood: "רמות רמז"},
		{Address: "d", Price: "no price", Neighborhood: "רמות רמז"},
	}

	report := svc.Generate(records)

	if report.TotalDeals != 4 {
		t.Errorf("total: got %d, want 4", report.TotalDeals)
	}
	if report.AveragePrice != 2000000 {
		t.Errorf("avg price: got %.0f, want 2000000", report.AveragePrice)
	}
	if report.MinPrice != 1000000 || report.MaxPrice != 3000000 {
		t.Errorf("price range: got %.0f–%.0f", report.MinPrice, report.MaxPrice)
	}
	if report.AveragePricePerSqM != 15000 {
		t.Errorf("avg price/m²: got %.0f, want 15000", report.AveragePricePerSqM)
	}
	if report.MostExpensive == nil || report.MostExpensive.Address != "c" {
		t.Errorf("most expensive: got %+v", report.MostExpensive)
	}
	if report.DealsByNeighborhood["נווה פז"] != 2 || report.DealsByNeighborhood["רמות רמז"] != 2 {
		t.Errorf("by neighborhood: got %v", report.DealsByNeighborhood)
	}
}

func TestInsightsGenerateEmpty(t *testing.T) {
	report := NewInsightService(utils.NewLogger()).Generate(nil)
	if report.TotalDeals != 0 || report.AveragePrice != 0 {
		t.Errorf("empty input should yield zero report: %+v", report)
	}
}
