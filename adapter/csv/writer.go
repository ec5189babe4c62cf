package csv

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Writer is a sink.Handler that appends every event to a single CSV file,
// writing the header row once at open. Grounded on CsvWriter.
type Writer struct {
	filename string
	mapper   RowMapper
	logger   zerolog.Logger

	file *os.File
	csv  *csv.Writer
}

// NewWriter creates (or truncates) filename and writes mapper's header
// row immediately.
func NewWriter(filename string, mapper RowMapper, logger zerolog.Logger) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("csv writer: open %s: %w", filename, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(mapper.Header()); err != nil {
		f.Close()
		return nil, fmt.Errorf("csv writer: header row for %s: %w", filename, err)
	}
	w.Flush()
	return &Writer{filename: filename, mapper: mapper, logger: logger, file: f, csv: w}, nil
}

func (w *Writer) String() string { return fmt.Sprintf("csv_writer(%s)", w.filename) }

// OnNext implements sink.Handler.
func (w *Writer) OnNext(topic string, event stream.Event) {
	row, err := w.mapper.EventToRow(event)
	if err != nil {
		w.logger.Warn().Err(err).Str("file", w.filename).Msg("dropping event that failed to map to a csv row")
		return
	}
	if err := w.csv.Write(row); err != nil {
		w.logger.Error().Err(err).Str("file", w.filename).Msg("csv write failed")
		return
	}
	w.csv.Flush()
}

// OnCompleted implements sink.Handler; the file is closed in Close instead.
func (w *Writer) OnCompleted(topic string) {}

// OnError implements sink.Handler; the file is closed in Close instead.
func (w *Writer) OnError(topic string, err error) {}

// Close implements sink.Handler.
func (w *Writer) Close() error {
	return w.file.Close()
}
