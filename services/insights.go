package services

import (
	"fmt"
	"sort"
	"strings"

	"zillow-scraper/models"
	"zillow-scraper/utils"
)

// RunReport holds the computed summary over one run's records.
type RunReport struct {
	TotalRecords  int
	AveragePrice  float64
	MinPrice      float64
	MaxPrice      float64
	MostViewed    *models.PropertyRecord
	MostExpensive *models.PropertyRecord
	ByStatus      map[string]int
	WithWarnings  int
}

// InsightService computes and prints a summary of a finished run.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes summary statistics over the run's records.
func (s *InsightService) Generate(records []*models.PropertyRecord) *RunReport {
	report := &RunReport{ByStatus: make(map[string]int)}
	if len(records) == 0 {
		return report
	}

	report.TotalRecords = len(records)
	report.MinPrice = records[0].Price
	report.MaxPrice = records[0].Price

	var total float64
	var maxViews int
	for _, r := range records {
		total += r.Price
		if r.Price < report.MinPrice {
			report.MinPrice = r.Price
		}
		if r.Price >= report.MaxPrice {
			report.MaxPrice = r.Price
			report.MostExpensive = r
		}
		if r.Status != "" {
			report.ByStatus[r.Status]++
		}
		if len(r.Warnings) > 0 {
			report.WithWarnings++
		}
		if r.ViewCount != nil && *r.ViewCount >= maxViews {
			maxViews = *r.ViewCount
			report.MostViewed = r
		}
	}
	report.AveragePrice = round2(total / float64(len(records)))
	report.MinPrice = round2(report.MinPrice)
	report.MaxPrice = round2(report.MaxPrice)

	return report
}

// Print renders the report to stdout.
func (s *InsightService) Print(r *RunReport) {
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n  RUN SUMMARY\n  %s\n", thin)
	fmt.Printf("  Records extracted : %d\n", r.TotalRecords)
	fmt.Printf("  With warnings     : %d\n", r.WithWarnings)
	fmt.Println()

	fmt.Printf("  Price statistics\n  %s\n", thin)
	if r.TotalRecords > 0 {
		fmt.Printf("  Average price : $%.2f\n", r.AveragePrice)
		fmt.Printf("  Minimum price : $%.2f\n", r.MinPrice)
		fmt.Printf("  Maximum price : $%.2f\n", r.MaxPrice)
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	if r.MostExpensive != nil {
		fmt.Printf("  Most expensive: %s ($%.2f)\n",
			truncate(r.MostExpensive.Address, 50), r.MostExpensive.Price)
	}
	if r.MostViewed != nil && r.MostViewed.ViewCount != nil {
		fmt.Printf("  Most viewed   : %s (%d views)\n",
			truncate(r.MostViewed.Address, 50), *r.MostViewed.ViewCount)
	}

	if len(r.ByStatus) > 0 {
		fmt.Printf("\n  Listings by status\n  %s\n", thin)
		type statusCount struct {
			status string
			count  int
		}
		var counts []statusCount
		for status, n := range r.ByStatus {
			counts = append(counts, statusCount{status, n})
		}
		sort.Slice(counts, func(i, j int) bool {
			return counts[i].count > counts[j].count
		})
		for _, sc := range counts {
			fmt.Printf("  %-20s %d\n", sc.status, sc.count)
		}
	}
	fmt.Println()
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
