// Package csv adapts event streams to and from CSV files: a RollingWriter
// and plain Writer sink (run on pkg/sink's blocking bridge, since file I/O
// can block) and a Reader source (a direct-pull publisher backed by
// encoding/csv). Grounded on antevents/adapters/csv.py's SensorEventMapping,
// CsvWriter, RollingCsvWriter, and CsvReader.
package csv

import (
	"fmt"
	"time"

	"github.com/cuemby/thingflow/pkg/stream"
)

// RowMapper defines the mapping between one event and one CSV row. Header
// names the columns written to a new file.
type RowMapper interface {
	Header() []string
	EventToRow(event stream.Event) ([]string, error)
	RowToEvent(row []string) (stream.Event, error)
}

// SensorEvent is a timestamped scalar reading, the canonical event shape
// these adapters map to CSV, ported from antevents.sensor.SensorEvent.
type SensorEvent struct {
	SensorID int
	Ts       float64
	Val      float64
}

// SensorEventMapper maps SensorEvent to/from a 4-column row: the raw unix
// timestamp, its ISO-8601 rendering, the sensor id, and the value. Grounded
// on SensorEventMapping.
type SensorEventMapper struct{}

func (SensorEventMapper) Header() []string {
	return []string{"timestamp", "datetime", "sensor_id", "value"}
}

func (SensorEventMapper) EventToRow(event stream.Event) ([]string, error) {
	e, ok := event.(SensorEvent)
	if !ok {
		return nil, fmt.Errorf("csv: expected SensorEvent, got %T", event)
	}
	ts := time.Unix(0, int64(e.Ts*float64(time.Second))).UTC()
	return []string{
		fmt.Sprintf("%f", e.Ts),
		ts.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", e.SensorID),
		fmt.Sprintf("%f", e.Val),
	}, nil
}

func (SensorEventMapper) RowToEvent(row []string) (stream.Event, error) {
	if len(row) < 4 {
		return nil, fmt.Errorf("csv: row has %d columns, want at least 4", len(row))
	}
	var e SensorEvent
	if _, err := fmt.Sscanf(row[0], "%f", &e.Ts); err != nil {
		return nil, fmt.Errorf("csv: parsing timestamp %q: %w", row[0], err)
	}
	if _, err := fmt.Sscanf(row[2], "%d", &e.SensorID); err != nil {
		return nil, fmt.Errorf("csv: parsing sensor_id %q: %w", row[2], err)
	}
	if _, err := fmt.Sscanf(row[3], "%f", &e.Val); err != nil {
		return nil, fmt.Errorf("csv: parsing value %q: %w", row[3], err)
	}
	return e, nil
}

// DateFromEvent extracts the calendar date a RollingWriter rolls files on.
// The default buckets by the SensorEvent timestamp's UTC date, mirroring
// default_get_date_from_event.
func DateFromEvent(event stream.Event) (time.Time, error) {
	e, ok := event.(SensorEvent)
	if !ok {
		return time.Time{}, fmt.Errorf("csv: expected SensorEvent, got %T", event)
	}
	ts := time.Unix(0, int64(e.Ts*float64(time.Second))).UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}
