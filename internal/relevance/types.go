package relevance

import (
	"strconv"
	"strings"
)

// Document is one uploaded repair document with its extracted text.
type Document struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	VehicleMake  string `json:"vehicle_make,omitempty"`
	VehicleModel string `json:"vehicle_model,omitempty"`
	VehicleYear  int    `json:"vehicle_year,omitempty"`
	FullText     string `json:"-"`
}

// VehicleContext is the vehicle the caller is asking about.
type VehicleContext struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
}

func (v *VehicleContext) IsZero() bool {
	return v == nil || (v.Make == "" && v.Model == "" && v.Year == 0)
}

// String renders the vehicle as "2015 Honda Civic", skipping unknown parts.
func (v *VehicleContext) String() string {
	if v.IsZero() {
		return ""
	}
	parts := make([]string, 0, 3)
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	if v.Make != "" {
		parts = append(parts, v.Make)
	}
	if v.Model != "" {
		parts = append(parts, v.Model)
	}
	return strings.Join(parts, " ")
}

type Query struct {
	Text    string
	Vehicle *VehicleContext
}

// SearchResult is a ranked document. RelevanceScore is always in [0, 1].
type SearchResult struct {
	Document       Document `json:"document"`
	Excerpt        string   `json:"excerpt"`
	RelevanceScore float64  `json:"relevance_score"`
	MatchReasons   []string `json:"match_reasons"`
}

type Weights struct {
	Automotive float64
	Symptom    float64
	TFIDF      float64
	Vehicle    float64
	Filename   float64
}

func DefaultWeights() Weights {
	return Weights{
		Automotive: 0.40,
		Symptom:    0.25,
		TFIDF:      0.20,
		Vehicle:    0.10,
		Filename:   0.05,
	}
}
