package models

import (
	"fmt"
	"strings"
)

// Field names the pipeline reads or writes. Everything else in a Record is
// passed through verbatim.
const (
	FieldURL          = "url"
	FieldScrapedAt    = "scraped_at"
	FieldTitle        = "title"
	FieldPrice        = "price"
	FieldLocation     = "location"
	FieldAddress      = "adresse"
	FieldPropertyType = "property_type"
	FieldSurface      = "surface"
	FieldRooms        = "rooms"
	FieldSourceSite   = "source_site"
)

// Record is one scraped listing as decoded from a JSON export. Values keep
// their raw form (prices stay "8 000 DH"); consumers normalise at read time.
type Record map[string]interface{}

// URL returns the natural key of the record. ok is false when the field is
// missing, not a string, or blank.
func (r Record) URL() (url string, ok bool) {
	s, isString := r[FieldURL].(string)
	if !isString || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Text returns a field rendered as a string, or "" when absent.
func (r Record) Text(key string) string {
	v, exists := r[key]
	if !exists || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// RawListing is the shape a scraper emits for one listing card. Its JSON
// field names match the exports the ingestion pipeline consumes.
type RawListing struct {
	Title           string `json:"title"`
	Price           string `json:"price"`
	Location        string `json:"location"`
	Address         string `json:"adresse"`
	PropertyType    string `json:"property_type"`
	URL             string `json:"url"`
	SourceSite      string `json:"source_site"`
	Surface         string `json:"surface,omitempty"`
	Rooms           string `json:"rooms,omitempty"`
	Bedrooms        string `json:"chambres,omitempty"`
	Description     string `json:"description,omitempty"`
	Balcony         string `json:"balcon"`
	Pool            string `json:"piscine"`
	Elevator        string `json:"ascenseur"`
	Features        string `json:"caracteristiques_supp,omitempty"`
	Images          string `json:"images,omitempty"`
	DateScraped     string `json:"date_scraped"`
	DatePublication string `json:"date_publication,omitempty"`
}

// PricedListing is a stored listing with its numeric fields normalised,
// as used by the insight report.
type PricedListing struct {
	ID           string
	Title        string
	URL          string
	Location     string
	PropertyType string
	Price        float64
	Surface      float64
	Rooms        int
}

// InsightReport holds the computed analytics over a sample of stored listings.
type InsightReport struct {
	TotalDocuments     int64
	SampleSize         int
	PricedListings     int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	AverageSurface     float64
	AverageRooms       float64
	MostExpensive      *PricedListing
	Samples            []*PricedListing
	ListingsByLocation map[string]int
	ListingsByType     map[string]int
}
