// Package storage persists raw tenders, filtered results and sent alerts.
// Two drivers are available: sqlite (default) and bolt.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spigell/tender-monitor/internal/tender"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"

	deadlineLayout = "2006-01-02"
)

var (
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
)

// RecordSource yields raw records for scoring.
type RecordSource interface {
	// All returns every raw record ordered by id.
	All(ctx context.Context) (*tender.Records, error)
	// Unscored returns raw records that have no filtered result yet.
	Unscored(ctx context.Context) (*tender.Records, error)
}

// ResultSink persists filtered results. InsertFiltered is all-or-nothing.
type ResultSink interface {
	InsertFiltered(ctx context.Context, results []*tender.FilteredResult) error
}

// Store is the full persistence surface used by the commands.
type Store interface {
	RecordSource
	ResultSink

	// InsertRaw stores records not seen before for the same source, by
	// external id or url, and returns the number inserted.
	InsertRaw(ctx context.Context, records []*tender.Record) (int, error)
	Get(ctx context.Context, id int64) (*tender.Record, error)
	Filtered(ctx context.Context) (*tender.Results, error)
	UpdateNotes(ctx context.Context, filteredID int64, notes string) error
	Unalerted(ctx context.Context, channel string) (*tender.Results, error)
	MarkAlerted(ctx context.Context, filteredID int64, channel string) error
	Close() error
}

// Open opens a store for driver at path, creating parent directories.
func Open(driver, path string) (Store, error) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return nil, errors.New("storage path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return NewSQLite(path)
	case DriverBolt, "bbolt":
		return NewBolt(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// deadlineValue reduces a deadline to the form stored on disk: dates become
// YYYY-MM-DD, other values are kept as text.
func deadlineValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return val.Format(deadlineLayout)
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil
		}
		return val.Format(deadlineLayout)
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// budgetValue keeps numbers and text as they are so malformed amounts
// survive a round trip.
func budgetValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return val
	case json.Number:
		return val.String()
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
