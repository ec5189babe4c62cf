package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/thingflow/pkg/source"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// rowIterator adapts an *encoding/csv.Reader to source.Iterator: io.EOF
// becomes end-of-sequence, a malformed header is reported as a fatal
// error at construction time (not per-row), and every other read error
// maps to an in-band error per row.
type rowIterator struct {
	file   *os.File
	reader *csv.Reader
	mapper RowMapper
}

// NewReader opens filename and returns a direct-pull source.Iterable that
// dispatches one mapped event per row. If hasHeaderRow, the first row is
// read and discarded; a failure to read it is a fatal error, mirroring
// CsvReader's "Problem in reading header row" behavior, since a pipeline
// wired to the wrong file should stop outright rather than silently
// misinterpret every row.
func NewReader(name, filename string, mapper RowMapper, hasHeaderRow bool, logger zerolog.Logger) (*source.Iterable, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, stream.NewFatalError(stream.CodeScheduleError,
			fmt.Sprintf("csv reader: open %s", filename), err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if hasHeaderRow {
		if _, err := r.Read(); err != nil {
			f.Close()
			return nil, stream.NewFatalError(stream.CodeScheduleError,
				fmt.Sprintf("csv reader: reading header row of %s", filename), err)
		}
	}

	it := &rowIterator{file: f, reader: r, mapper: mapper}
	return source.NewIterable(name, it, logger), nil
}

func (it *rowIterator) Next() (stream.Event, bool, error) {
	row, err := it.reader.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	event, err := it.mapper.RowToEvent(row)
	if err != nil {
		return nil, false, err
	}
	return event, true, nil
}

func (it *rowIterator) Close() error {
	return it.file.Close()
}
