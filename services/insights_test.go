package services

import (
	"bytes"
	"strings"
	"testing"

	"domus-ia/models"
	"domus-ia/utils"
)

type hexID string

func (h hexID) Hex() string { return string(h) }

func sampleRecords() []models.Record {
	return []models.Record{
		{"_id": hexID("65a1"), "title": "Villa A", "price": "2 500 000 DH", "location": "Casablanca", "property_type": "Villa", "surface": "300 m²", "rooms": "5"},
		{"title": "Studio B", "price": "450 000 DH", "location": "Casablanca", "property_type": "Appartement", "surface": "45 m²", "rooms": "1 ch"},
		{"title": "Appartement C", "price": float64(1200000), "adresse": "Rabat  Agdal", "property_type": "appartement", "rooms": float64(3)},
		{"title": "Terrain D", "price": "Prix à consulter", "location": "Marrakech", "property_type": "Terrain"},
		{"title": "Riad E", "prix": "3 100 000 DH", "location": "Marrakech", "chambres": "6"},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleRecords(), 1234)
	if r.TotalDocuments != 1234 {
		t.Errorf("TotalDocuments: got %d, want 1234", r.TotalDocuments)
	}
	if r.SampleSize != 5 {
		t.Errorf("SampleSize: got %d, want 5", r.SampleSize)
	}
	if r.PricedListings != 4 {
		t.Errorf("PricedListings: got %d, want 4", r.PricedListings)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleRecords(), 5)

	wantAvg := 1812500.0
	if r.AveragePrice != wantAvg {
		t.Errorf("AveragePrice: got %.2f, want %.2f", r.AveragePrice, wantAvg)
	}
	if r.MinPrice != 450000 {
		t.Errorf("MinPrice: got %.2f, want 450000", r.MinPrice)
	}
	if r.MaxPrice != 3100000 {
		t.Errorf("MaxPrice: got %.2f, want 3100000", r.MaxPrice)
	}
	if r.MostExpensive == nil || r.MostExpensive.Title != "Riad E" {
		t.Errorf("MostExpensive: got %+v, want Riad E", r.MostExpensive)
	}
	if r.AverageSurface != 172.5 {
		t.Errorf("AverageSurface: got %.2f, want 172.5", r.AverageSurface)
	}
	if r.AverageRooms != 3.75 {
		t.Errorf("AverageRooms: got %.2f, want 3.75", r.AverageRooms)
	}
}

func TestInsightGrouping(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleRecords(), 5)

	if r.ListingsByLocation["Casablanca"] != 2 {
		t.Errorf("Casablanca count: got %d, want 2", r.ListingsByLocation["Casablanca"])
	}
	if r.ListingsByLocation["Rabat Agdal"] != 1 {
		t.Errorf("address fallback: got %d, want 1", r.ListingsByLocation["Rabat Agdal"])
	}
	if r.ListingsByType["appartement"] != 2 {
		t.Errorf("appartement count: got %d, want 2", r.ListingsByType["appartement"])
	}
	if len(r.Samples) != 3 || r.Samples[0].ID != "65a1" {
		t.Errorf("Samples: got %d (first id %q), want 3 starting with 65a1", len(r.Samples), r.Samples[0].ID)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil, 0)
	if r.SampleSize != 0 || r.MostExpensive != nil {
		t.Errorf("expected empty report for empty input, got %+v", r)
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	var buf bytes.Buffer
	svc.Fprint(&buf, svc.Generate(sampleRecords(), 5))

	out := buf.String()
	for _, want := range []string{"Documents stored : 5", "3 100 000 MAD", "Casablanca", "65a1"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q", want)
		}
	}
}

func TestFormatMAD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 MAD"},
		{950, "950 MAD"},
		{8000, "8 000 MAD"},
		{1250000, "1 250 000 MAD"},
	}
	for _, tt := range tests {
		if got := formatMAD(tt.in); got != tt.want {
			t.Errorf("formatMAD(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
