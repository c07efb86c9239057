package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"listing-scraper/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Report struct {
	TotalListings      int
	ListingsBySite     map[string]int
	PricedListings     int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	MostExpensive      models.ListingRecord
	TopRated           []models.ListingRecord
	ListingsByLocation map[string]int
}

// GenerateReport computes market insights over already cleaned records.
func GenerateReport(records []models.ListingRecord) Report {
	report := Report{
		TotalListings:      len(records),
		ListingsBySite:     make(map[string]int),
		ListingsByLocation: make(map[string]int),
	}
	if len(records) == 0 {
		return report
	}

	var (
		priceSum     float64
		maxPrice     = -1.0
		minPrice     = math.MaxFloat64
		highestRated []models.ListingRecord
	)

	for _, r := range records {
		report.ListingsBySite[r.SourceSite]++
		report.ListingsByLocation[location(r)]++

		if r.Price != nil && *r.Price > 0 {
			p := *r.Price
			priceSum += p
			report.PricedListings++
			if p > maxPrice {
				maxPrice = p
				report.MostExpensive = r
			}
			if p < minPrice {
				minPrice = p
			}
		}

		if rating(r) > 0 {
			highestRated = append(highestRated, r)
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = priceSum / float64(report.PricedListings)
		report.MinPrice = minPrice
		report.MaxPrice = maxPrice
	}

	sort.SliceStable(highestRated, func(i, j int) bool {
		ri, rj := rating(highestRated[i]), rating(highestRated[j])
		if ri == rj {
			return price(highestRated[i]) > price(highestRated[j])
		}
		return ri > rj
	})
	if len(highestRated) > 5 {
		highestRated = highestRated[:5]
	}
	report.TopRated = highestRated

	return report
}

func PrintReport(w io.Writer, report Report) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Rental Market Insights")
	summary.AppendRows([]table.Row{
		{"Total Listings", report.TotalListings},
		{"Listings With Price", report.PricedListings},
		{"Average Price", fmt.Sprintf("%.2f", report.AveragePrice)},
		{"Minimum Price", fmt.Sprintf("%.2f", report.MinPrice)},
		{"Maximum Price", fmt.Sprintf("%.2f", report.MaxPrice)},
	})
	summary.SetStyle(table.StyleRounded)
	summary.Render()

	if report.MostExpensive.NaturalKey != "" {
		top := table.NewWriter()
		top.SetOutputMirror(w)
		top.SetTitle("Most Expensive Property")
		top.AppendRows([]table.Row{
			{"Title", truncateText(report.MostExpensive.Title, 60)},
			{"Price", fmt.Sprintf("%.2f", price(report.MostExpensive))},
			{"Location", location(report.MostExpensive)},
			{"Site", report.MostExpensive.SourceSite},
		})
		// keep the title on one line even when the values are short
		top.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, WidthMin: 10},
			{Number: 2, WidthMin: 30},
		})
		top.SetStyle(table.StyleRounded)
		top.Render()
	}

	bySite := table.NewWriter()
	bySite.SetOutputMirror(w)
	bySite.AppendHeader(table.Row{"Site", "Listings"})
	for _, site := range sortedKeys(report.ListingsBySite) {
		bySite.AppendRow(table.Row{site, report.ListingsBySite[site]})
	}
	bySite.SetStyle(table.StyleRounded)
	bySite.Render()

	byLocation := table.NewWriter()
	byLocation.SetOutputMirror(w)
	byLocation.AppendHeader(table.Row{"Location", "Listings"})
	for _, loc := range sortedKeys(report.ListingsByLocation) {
		byLocation.AppendRow(table.Row{truncateText(loc, 44), report.ListingsByLocation[loc]})
	}
	byLocation.SetStyle(table.StyleRounded)
	byLocation.Render()

	if len(report.TopRated) > 0 {
		rated := table.NewWriter()
		rated.SetOutputMirror(w)
		rated.AppendHeader(table.Row{"#", "Top Rated", "Rating"})
		for i, r := range report.TopRated {
			rated.AppendRow(table.Row{i + 1, truncateText(r.Title, 44), fmt.Sprintf("%.2f", rating(r))})
		}
		rated.SetStyle(table.StyleRounded)
		rated.Render()
	}
}

// location prefers the city part of an address.
func location(r models.ListingRecord) string {
	if city := strings.TrimSpace(r.ExtraFields["city"]); city != "" {
		return city
	}
	addr := strings.TrimSpace(r.Address)
	if addr == "" {
		return "Unknown"
	}
	parts := strings.Split(addr, ",")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[len(parts)-2])
	}
	return strings.TrimSpace(parts[0])
}

func rating(r models.ListingRecord) float64 {
	v, err := strconv.ParseFloat(r.ExtraFields["rating"], 64)
	if err != nil || v < 0 || v > 5 {
		return 0
	}
	return v
}

func price(r models.ListingRecord) float64 {
	if r.Price == nil {
		return 0
	}
	return *r.Price
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
