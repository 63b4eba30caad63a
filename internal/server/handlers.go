package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/store"
	"github.com/caevv/storemon/internal/uptime"
)

// PartialFailuresHeader lists the stores of a downloaded report whose numbers
// come from a fallback. The CSV body has no column for it.
const PartialFailuresHeader = "X-Partial-Failures"

const (
	version      = "v0.1.0"
	defaultLimit = 100
	maxLimit     = 1000
)

// handleTrigger starts a new report.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.metrics.TriggerRejected()
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "too many report triggers", nil)
		return
	}

	id, err := s.reports.Trigger(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to trigger report", err)
		return
	}

	s.writeJSON(w, http.StatusOK, TriggerResponse{ReportID: id})
}

// handleGetReport polls a report. A complete report is returned as a file
// download; otherwise the status is returned as JSON.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reportID := q.Get("report_id")
	if reportID == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "report_id is required"})
		return
	}

	format, err := report.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	job, ok := s.lookup(w, r, reportID)
	if !ok {
		return
	}

	switch job.Status {
	case store.StatusComplete:
		s.writeDocument(w, job, format)
	case store.StatusFailed:
		s.writeJSON(w, http.StatusOK, StatusResponse{Status: job.Status, Error: job.Error})
	default:
		s.writeJSON(w, http.StatusOK, StatusResponse{Status: job.Status})
	}
}

// lookup fetches a job and writes the error response when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, reportID string) (*store.Job, bool) {
	job, err := s.reports.Status(r.Context(), reportID)
	if errors.Is(err, uptime.ErrInvalidReportID) {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Invalid report_id"})
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read report", err)
		return nil, false
	}
	return job, true
}

func (s *Server) writeDocument(w http.ResponseWriter, job *store.Job, format report.Format) {
	body, err := report.Encode(job.Document(), format)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode report", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(job.ReportID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if ids := report.PartialFailures(job.Rows); len(ids) > 0 {
		w.Header().Set(PartialFailuresHeader, strings.Join(ids, ","))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Error("failed to write report", "report_id", job.ReportID, "error", err)
	}
}

// handleHealth returns the health status of the server
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  s.Uptime(),
	})
}

// handleListReports returns recent reports, newest first.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.reports.List(r.Context(), s.parseLimitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve reports", err)
		return
	}

	out := make([]ReportSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, summarize(j))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleReportDetail returns one report including its rows.
func (s *Server) handleReportDetail(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// parseLimitParam parses the limit query parameter
func (s *Server) parseLimitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}

	if err != nil {
		s.logger.Error("API error", "status", status, "message", message, "error", err)
	}

	s.writeJSON(w, status, response)
}
