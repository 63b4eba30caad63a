package server

import (
	"time"

	"github.com/caevv/storemon/internal/store"
)

// TriggerResponse is returned by POST /trigger_report.
type TriggerResponse struct {
	ReportID string `json:"report_id"`
}

// StatusResponse is returned by GET /get_report while a report is not
// downloadable.
type StatusResponse struct {
	Status store.Status `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// ReportSummary is one entry of GET /api/reports.
type ReportSummary struct {
	ReportID         string       `json:"report_id"`
	Status           store.Status `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	ReferenceInstant *time.Time   `json:"reference_instant,omitempty"`
	DurationMs       int64        `json:"duration_ms"`
	StoreCount       int          `json:"store_count"`
	Error            string       `json:"error,omitempty"`
}

func summarize(j *store.Job) ReportSummary {
	out := ReportSummary{
		ReportID:   j.ReportID,
		Status:     j.Status,
		CreatedAt:  j.CreatedAt,
		DurationMs: j.Duration().Milliseconds(),
		StoreCount: j.StoreCount,
		Error:      j.Error,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		out.CompletedAt = &t
	}
	if !j.ReferenceInstant.IsZero() {
		t := j.ReferenceInstant
		out.ReferenceInstant = &t
	}
	return out
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
