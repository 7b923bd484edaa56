// Package models defines the core data structures used throughout the application.
package models

import (
	"time"
)

// IncidentType represents the category of a reported incident.
type IncidentType string

const (
	IncidentTheft      IncidentType = "theft"
	IncidentRobbery    IncidentType = "robbery"
	IncidentAssault    IncidentType = "assault"
	IncidentBurglary   IncidentType = "burglary"
	IncidentVandalism  IncidentType = "vandalism"
	IncidentKidnapping IncidentType = "kidnapping"
	IncidentThreat     IncidentType = "threat"
	IncidentSuspicious IncidentType = "suspicious_activity"
	IncidentWanted     IncidentType = "wanted_person"
	IncidentHazard     IncidentType = "hazard"
)

// IncidentTypes lists every valid incident category.
var IncidentTypes = []IncidentType{
	IncidentTheft,
	IncidentRobbery,
	IncidentAssault,
	IncidentBurglary,
	IncidentVandalism,
	IncidentKidnapping,
	IncidentThreat,
	IncidentSuspicious,
	IncidentWanted,
	IncidentHazard,
}

// Valid reports whether t is a known incident category.
func (t IncidentType) Valid() bool {
	for _, known := range IncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ReportStatus represents the lifecycle state of a report.
type ReportStatus int

const (
	StatusActive      ReportStatus = 0
	StatusUnderReview ReportStatus = 1
	StatusClosed      ReportStatus = 2
)

// VerificationLevel represents the discrete trust tier of a report.
type VerificationLevel string

const (
	LevelUnverified VerificationLevel = "unverified"
	LevelPending    VerificationLevel = "pending"
	LevelVerified   VerificationLevel = "verified"
	LevelConfirmed  VerificationLevel = "confirmed"
)

// Rank orders verification levels: unverified < pending < verified < confirmed.
func (l VerificationLevel) Rank() int {
	switch l {
	case LevelPending:
		return 1
	case LevelVerified:
		return 2
	case LevelConfirmed:
		return 3
	default:
		return 0
	}
}

// SeverityLevel is the coarse bucket derived from a report's 1-5 severity.
type SeverityLevel string

const (
	SeverityLow    SeverityLevel = "low"
	SeverityMedium SeverityLevel = "medium"
	SeverityHigh   SeverityLevel = "high"
)

// SeverityLevelFor derives the severity bucket. Derived on every read, never
// stored, so it cannot drift from the underlying severity.
func SeverityLevelFor(severity int) SeverityLevel {
	switch {
	case severity >= 4:
		return SeverityHigh
	case severity == 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DefaultSeverity is applied when a report is created without one.
const DefaultSeverity = 3

// MaxAttachments bounds the attachment list on a report.
const MaxAttachments = 5

// Report represents a single incident submission tied to a geographic point.
type Report struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Type        IncidentType `json:"type"`
	Lat         float64      `json:"lat"`
	Lng         float64      `json:"lng"`
	Address     string       `json:"address,omitempty"`
	AreaCode    string       `json:"area_code,omitempty"`
	Province    string       `json:"province,omitempty"`
	District    string       `json:"district,omitempty"`
	Ward        string       `json:"ward,omitempty"`
	Street      string       `json:"street,omitempty"`
	Source      string       `json:"source,omitempty"`
	Attachments []string     `json:"attachments,omitempty"`

	Status        ReportStatus  `json:"status"`
	Severity      int           `json:"severity"`
	SeverityLevel SeverityLevel `json:"severity_level"`

	// Trust state, owned exclusively by the trust engine.
	TrustScore        int               `json:"trust_score"`
	VerificationLevel VerificationLevel `json:"verification_level"`
	ConfirmationCount int               `json:"confirmation_count"`
	DisputeCount      int               `json:"dispute_count"`

	ReportedAt *time.Time `json:"reported_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Optimistic concurrency token, never exposed over the API.
	Version int64 `json:"-"`
}

// CreateReportInput is the request payload for report creation.
type CreateReportInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        IncidentType `json:"type"`
	Lat         float64      `json:"lat"`
	Lng         float64      `json:"lng"`
	Address     string       `json:"address"`
	AreaCode    string       `json:"area_code"`
	Province    string       `json:"province"`
	District    string       `json:"district"`
	Ward        string       `json:"ward"`
	Street      string       `json:"street"`
	Source      string       `json:"source"`
	Attachments []string     `json:"attachments"`
	Severity    *int         `json:"severity"`
	ReportedAt  *time.Time   `json:"reported_at"`
}

// ReportPatch is the request payload for report updates. Trust and status
// fields are deliberately absent: payloads carrying them decode cleanly and
// the values are ignored.
type ReportPatch struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Type        *IncidentType `json:"type"`
	Lat         *float64      `json:"lat"`
	Lng         *float64      `json:"lng"`
	Address     *string       `json:"address"`
	AreaCode    *string       `json:"area_code"`
	Province    *string       `json:"province"`
	District    *string       `json:"district"`
	Ward        *string       `json:"ward"`
	Street      *string       `json:"street"`
	Source      *string       `json:"source"`
	Attachments *[]string     `json:"attachments"`
	Severity    *int          `json:"severity"`
	ReportedAt  *time.Time    `json:"reported_at"`
}

// FieldError describes a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TypeCount is one byType statistics entry.
type TypeCount struct {
	Type  IncidentType `json:"type"`
	Count int          `json:"count"`
}

// DistrictCount is one byDistrict statistics entry.
type DistrictCount struct {
	District string `json:"district"`
	Count    int    `json:"count"`
}

// Statistics summarizes a report collection.
type Statistics struct {
	Total      int             `json:"total"`
	ByType     []TypeCount     `json:"by_type"`
	ByDistrict []DistrictCount `json:"by_district"`
}

// HeatmapPoint is one aggregated cell of the incident heatmap.
type HeatmapPoint struct {
	Lat      float64       `json:"lat"`
	Lng      float64       `json:"lng"`
	Province string        `json:"province,omitempty"`
	District string        `json:"district,omitempty"`
	Type     IncidentType  `json:"type"`
	Count    int           `json:"count"`
	Severity SeverityLevel `json:"severity"`
}

// NearbyReport is the summary of one in-radius report in an alert result.
type NearbyReport struct {
	ID                string            `json:"id"`
	Title             string            `json:"title,omitempty"`
	Type              IncidentType      `json:"type"`
	Lat               float64           `json:"lat"`
	Lng               float64           `json:"lng"`
	Address           string            `json:"address,omitempty"`
	Severity          int               `json:"severity"`
	VerificationLevel VerificationLevel `json:"verification_level"`
	DistanceMeters    float64           `json:"distance_meters"`
	CreatedAt         time.Time         `json:"created_at"`
}

// AlertLevel grades an aggregate proximity alert.
type AlertLevel string

const (
	AlertNone   AlertLevel = ""
	AlertLow    AlertLevel = "low"
	AlertMedium AlertLevel = "medium"
	AlertHigh   AlertLevel = "high"
)

// AlertResult is the outcome of a proximity evaluation.
type AlertResult struct {
	HasAlert         bool           `json:"has_alert"`
	Message          string         `json:"message,omitempty"`
	AlertLevel       AlertLevel     `json:"alert_level,omitempty"`
	TotalReports     int            `json:"total_reports"`
	TotalDangerScore float64        `json:"total_danger_score"`
	Reports          []NearbyReport `json:"reports,omitempty"`
}

// User represents an actor able to file and vote on reports.
type User struct {
	ID         string     `json:"id"`
	KeyHash    string     `json:"-"` // Never expose
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// AuditLog represents an API request audit entry.
type AuditLog struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestSize  int64     `json:"request_size"`
	ResponseCode int       `json:"response_code"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
