package store

import (
	"fmt"
	"strings"
)

// SupportedDrivers lists all available store drivers.
var SupportedDrivers = []string{"bbolt", "json", "redis"}

// NewStore creates a new Store instance based on the specified driver.
// Supported drivers:
//   - "bbolt": BoltDB-backed persistent storage (default)
//   - "json": JSON file-backed storage (suitable for testing and small deployments)
//   - "redis": Redis-backed storage shared between several servers; path is a redis:// URL
//
// The path parameter specifies where the store data will be persisted.
func NewStore(driver, path string) (Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))

	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	switch driver {
	case "bbolt":
		s, err := NewBoltStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "json":
		s, err := NewJSONStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: %v)", driver, SupportedDrivers)
	}
}
