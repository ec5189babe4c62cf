package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// DateFunc extracts the calendar date used to bucket an event into a file.
type DateFunc func(event stream.Event) (time.Time, error)

// RollingWriter writes events to directory/baseName-yyyy-mm-dd.csv, rolling
// to a new file whenever the event's date (per dateFn) changes. A file that
// already exists on disk is appended to without rewriting its header row.
// Grounded on RollingCsvWriter._start_file.
type RollingWriter struct {
	directory string
	baseName  string
	mapper    RowMapper
	dateFn    DateFunc
	logger    zerolog.Logger

	file        *os.File
	csv         *csv.Writer
	currentDate time.Time
	hasDate     bool
}

// NewRollingWriter builds a RollingWriter. dateFn defaults to DateFromEvent
// when nil.
func NewRollingWriter(directory, baseName string, mapper RowMapper, dateFn DateFunc, logger zerolog.Logger) *RollingWriter {
	if dateFn == nil {
		dateFn = DateFromEvent
	}
	return &RollingWriter{directory: directory, baseName: baseName, mapper: mapper, dateFn: dateFn, logger: logger}
}

func (w *RollingWriter) String() string {
	return fmt.Sprintf("rolling_csv_writer(%s/%s)", w.directory, w.baseName)
}

func (w *RollingWriter) filenameFor(date time.Time) string {
	return filepath.Join(w.directory, fmt.Sprintf("%s-%04d-%02d-%02d.csv",
		w.baseName, date.Year(), date.Month(), date.Day()))
}

func (w *RollingWriter) startFile(date time.Time) error {
	filename := w.filenameFor(date)
	_, statErr := os.Stat(filename)
	exists := statErr == nil

	flags := os.O_CREATE | os.O_WRONLY
	if exists {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(filename, flags, 0o644)
	if err != nil {
		return fmt.Errorf("rolling csv writer: open %s: %w", filename, err)
	}

	w.csv = csv.NewWriter(f)
	if !exists {
		if err := w.csv.Write(w.mapper.Header()); err != nil {
			f.Close()
			return fmt.Errorf("rolling csv writer: header row for %s: %w", filename, err)
		}
		w.csv.Flush()
	}
	w.file = f
	w.currentDate = date
	w.hasDate = true
	return nil
}

// OnNext implements sink.Handler.
func (w *RollingWriter) OnNext(topic string, event stream.Event) {
	date, err := w.dateFn(event)
	if err != nil {
		w.logger.Warn().Err(err).Str("writer", w.String()).Msg("dropping event with no derivable date")
		return
	}
	if !w.hasDate || !date.Equal(w.currentDate) {
		if w.file != nil {
			w.file.Close()
		}
		if err := w.startFile(date); err != nil {
			w.logger.Error().Err(err).Str("writer", w.String()).Msg("failed to roll to new file")
			return
		}
	}
	row, err := w.mapper.EventToRow(event)
	if err != nil {
		w.logger.Warn().Err(err).Str("writer", w.String()).Msg("dropping event that failed to map to a csv row")
		return
	}
	if err := w.csv.Write(row); err != nil {
		w.logger.Error().Err(err).Str("writer", w.String()).Msg("csv write failed")
		return
	}
	w.csv.Flush()
}

func (w *RollingWriter) OnCompleted(topic string) {}
func (w *RollingWriter) OnError(topic string, err error) {}

func (w *RollingWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
