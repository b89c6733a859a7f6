package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"domus-ia/models"
	"domus-ia/utils"
)

const sampleTitles = 3

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate builds a report over a sample of stored records. Raw prices,
// surfaces and room counts are normalised here, not at ingestion.
func (s *InsightService) Generate(records []models.Record, totalDocuments int64) *models.InsightReport {
	report := &models.InsightReport{
		TotalDocuments:     totalDocuments,
		ListingsByLocation: make(map[string]int),
		ListingsByType:     make(map[string]int),
	}

	if len(records) == 0 {
		return report
	}
	report.SampleSize = len(records)

	var (
		priceTotal, surfaceTotal float64
		surfaces, roomsTotal     int
		rooms                    int
	)

	for _, r := range records {
		l := toPriced(r)
		if len(report.Samples) < sampleTitles {
			report.Samples = append(report.Samples, l)
		}

		if l.Location != "" {
			report.ListingsByLocation[l.Location]++
		}
		if l.PropertyType != "" {
			report.ListingsByType[l.PropertyType]++
		}
		if l.Surface > 0 {
			surfaceTotal += l.Surface
			surfaces++
		}
		if l.Rooms > 0 {
			roomsTotal += l.Rooms
			rooms++
		}

		if l.Price <= 0 {
			continue
		}
		report.PricedListings++
		priceTotal += l.Price
		if report.MostExpensive == nil || l.Price > report.MaxPrice {
			report.MaxPrice = l.Price
			report.MostExpensive = l
		}
		if report.MinPrice == 0 || l.Price < report.MinPrice {
			report.MinPrice = l.Price
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(priceTotal / float64(report.PricedListings))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}
	if surfaces > 0 {
		report.AverageSurface = round2(surfaceTotal / float64(surfaces))
	}
	if rooms > 0 {
		report.AverageRooms = round2(float64(roomsTotal) / float64(rooms))
	}

	s.logger.Debug("[insights] %d sampled, %d priced", report.SampleSize, report.PricedListings)
	return report
}

func toPriced(r models.Record) *models.PricedListing {
	location := r.Text(models.FieldLocation)
	if strings.TrimSpace(location) == "" {
		location = r.Text(models.FieldAddress)
	}

	price, ok := r[models.FieldPrice]
	if !ok {
		price = r["prix"]
	}
	rooms, ok := r[models.FieldRooms]
	if !ok {
		rooms = r["chambres"]
	}

	return &models.PricedListing{
		ID:           documentID(r["_id"]),
		Title:        normaliseText(r.Text(models.FieldTitle)),
		URL:          r.Text(models.FieldURL),
		Location:     normaliseText(location),
		PropertyType: strings.ToLower(normaliseText(r.Text(models.FieldPropertyType))),
		Price:        CleanPrice(price),
		Surface:      CleanPrice(r[models.FieldSurface]),
		Rooms:        CleanInt(rooms),
	}
}

func documentID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case interface{ Hex() string }:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// Print writes the report to stdout.
func (s *InsightService) Print(r *models.InsightReport) {
	s.Fprint(os.Stdout, r)
}

func (s *InsightService) Fprint(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  LISTINGS STORE REPORT\n")
	fmt.Fprintf(w, "%s\n\n", sep)

	fmt.Fprintf(w, "  Overview\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Documents stored : %d\n", r.TotalDocuments)
	fmt.Fprintf(w, "  Sample size      : %d\n", r.SampleSize)
	fmt.Fprintf(w, "  Priced in sample : %d\n", r.PricedListings)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Price Statistics (MAD)\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : %s\n", formatMAD(r.AveragePrice))
		fmt.Fprintf(w, "  Minimum price : %s\n", formatMAD(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : %s\n", formatMAD(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	if r.AverageSurface > 0 {
		fmt.Fprintf(w, "  Average surface : %.0f m²\n", r.AverageSurface)
	}
	if r.AverageRooms > 0 {
		fmt.Fprintf(w, "  Average rooms   : %.1f\n", r.AverageRooms)
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most Expensive Listing\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.Location)
		fmt.Fprintf(w, "  Price    : %s\n", formatMAD(r.MostExpensive.Price))
		fmt.Fprintln(w)
	}

	printCounts(w, "Listings by Location", r.ListingsByLocation, thin)
	printCounts(w, "Listings by Property Type", r.ListingsByType, thin)

	if len(r.Samples) > 0 {
		fmt.Fprintf(w, "  Sample Documents\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, l := range r.Samples {
			fmt.Fprintf(w, "  %-24s %s\n", l.ID, truncate(l.Title, 40))
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", sep)
}

func printCounts(w io.Writer, title string, counts map[string]int, thin string) {
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}

	type keyCount struct {
		key   string
		count int
	}
	rows := make([]keyCount, 0, len(counts))
	for k, c := range counts {
		rows = append(rows, keyCount{k, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, kc := range rows {
		fmt.Fprintf(w, "  %-30s %d\n", truncate(kc.key, 28), kc.count)
	}
	fmt.Fprintln(w)
}

// formatMAD renders 1250000 as "1 250 000 MAD".
func formatMAD(v float64) string {
	digits := fmt.Sprintf("%d", int64(v))
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return b.String() + " MAD"
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
