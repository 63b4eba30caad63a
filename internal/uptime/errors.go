package uptime

import (
	"errors"
	"fmt"
)

// ScheduleParseError reports malformed business-hours or timezone input for a
// store. The resolver never substitutes a default on its own; callers decide
// the fallback.
type ScheduleParseError struct {
	StoreID string
	Field   string
	Value   string
	Err     error
}

func (e *ScheduleParseError) Error() string {
	return fmt.Sprintf("store %s: invalid %s %q: %v", e.StoreID, e.Field, e.Value, e.Err)
}

func (e *ScheduleParseError) Unwrap() error {
	return e.Err
}

// DataUnavailableError means the dataset cannot produce any report: the data
// store failed, or it holds no stores or no observations. It is fatal to a job.
type DataUnavailableError struct {
	Reason string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable: %s: %v", e.Reason, e.Err)
	}
	return "data unavailable: " + e.Reason
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// ErrInvalidReportID is returned when polling a report id that was never issued.
var ErrInvalidReportID = errors.New("invalid report_id")
