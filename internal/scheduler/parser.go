package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// Seconds are optional so "*/30 * * * * *" and "0 * * * *" both parse.
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	// "every 5m", "every 2 hours", "every 1w"
	intervalRegex = regexp.MustCompile(`^every\s+(\d+)\s*([a-z]+)$`)

	intervalUnits = map[string]time.Duration{
		"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
		"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
		"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
		"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
		"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	}
)

const maxInterval = 365 * 24 * time.Hour

// ParseSchedule parses a schedule expression and returns a cron.Schedule.
// Supported forms:
//   - cron expressions with 5 or 6 fields: "0 2 * * *", "*/5 * * * *"
//   - intervals: "every 5m", "every 2h", "every 1w"
//   - descriptors: "@hourly", "@daily", "@every 90s"
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule expression cannot be empty")
	}

	if strings.HasPrefix(strings.ToLower(expr), "every ") {
		d, err := ParseInterval(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid interval expression %q: %w", expr, err)
		}
		return cron.Every(d), nil
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// ParseInterval returns the duration of an "every <n><unit>" expression.
func ParseInterval(expr string) (time.Duration, error) {
	matches := intervalRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid format, expected 'every <number> <unit>' (e.g., 'every 5m')")
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: must be a positive integer")
	}

	unit, ok := intervalUnits[matches[2]]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", matches[2])
	}

	d := time.Duration(value) * unit
	if d > maxInterval {
		return 0, fmt.Errorf("interval cannot exceed 1 year")
	}
	return d, nil
}

// ValidateSchedule reports whether expr is a valid schedule expression.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// NextRun calculates the next run time for a schedule expression from the given time.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
