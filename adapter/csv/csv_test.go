package csv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/thingflow/pkg/sink"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterThenReaderRoundTrips(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "events.csv")

	w, err := NewWriter(filename, SensorEventMapper{}, zerolog.Nop())
	require.NoError(t, err)

	br := sink.New("csv-out", []string{"default"}, w, zerolog.Nop(), 4)
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	_, err = up.Subscribe(br, "default", "default")
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- br.Run() }()

	events := []SensorEvent{
		{SensorID: 1, Ts: 1000, Val: 1.5},
		{SensorID: 2, Ts: 2000, Val: 2.5},
	}
	for _, e := range events {
		require.NoError(t, up.DispatchNext(e, "default"))
	}
	require.NoError(t, up.DispatchCompleted("default"))
	require.NoError(t, <-runDone)

	src, err := NewReader("csv-in", filename, SensorEventMapper{}, true, zerolog.Nop())
	require.NoError(t, err)

	var got []stream.Event
	var completed bool
	_, err = src.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	for {
		more, oerr := src.Observe()
		require.NoError(t, oerr)
		if !more {
			break
		}
	}

	require.True(t, completed)
	require.Len(t, got, 2)
	first := got[0].(SensorEvent)
	assert.Equal(t, 1, first.SensorID)
	assert.InDelta(t, 1000.0, first.Ts, 0.001)
	assert.InDelta(t, 1.5, first.Val, 0.001)
}

func TestReaderMalformedHeaderIsFatal(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(filename, []byte{}, 0o644))

	_, err := NewReader("csv-in", filename, SensorEventMapper{}, true, zerolog.Nop())
	require.Error(t, err)
	var fe *stream.FatalError
	require.ErrorAs(t, err, &fe)
}

func TestRollingWriterStartsNewFilePerDate(t *testing.T) {
	dir := t.TempDir()
	w := NewRollingWriter(dir, "sensor1", SensorEventMapper{}, nil, zerolog.Nop())

	br := sink.New("csv-rolling", []string{"default"}, w, zerolog.Nop(), 4)
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	_, err := up.Subscribe(br, "default", "default")
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- br.Run() }()

	const day1 = 1577836800  // 2020-01-01T00:00:00Z
	const day2 = 1577923200  // 2020-01-02T00:00:00Z
	require.NoError(t, up.DispatchNext(SensorEvent{SensorID: 1, Ts: day1, Val: 1}, "default"))
	require.NoError(t, up.DispatchNext(SensorEvent{SensorID: 1, Ts: day2, Val: 2}, "default"))
	require.NoError(t, up.DispatchCompleted("default"))
	require.NoError(t, <-runDone)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
