package models

import "time"

// Document is an uploaded repair document. ExtractedText is plain text; markup
// is stripped on the way in.
type Document struct {
	ID            string
	UserID        string
	Title         string
	VehicleMake   string
	VehicleModel  string
	VehicleYear   int
	ExtractedText string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AnswerRecord struct {
	ID                 string
	UserID             string
	QueryText          string
	VehicleMake        string
	VehicleModel       string
	VehicleYear        int
	Answer             string
	Confidence         float64
	ConsistencyScore   float64
	AccuracyIndicators []string
	UsedDocuments      bool
	SampleCount        int
	LatencyMS          int
	Sources            []AnswerSource
	CreatedAt          time.Time
}

type AnswerSource struct {
	ID             int
	AnswerID       string
	DocumentID     string
	Title          string
	RelevanceScore float64
}

type Feedback struct {
	ID        int
	AnswerID  string
	Helpful   bool
	Comment   string
	CreatedAt time.Time
}
