// Package pipeline loads a declarative YAML pipeline definition — sources,
// filters, and sinks wired together by name, plus the scheduling discipline
// each source runs under — and builds the running graph from it. Grounded
// on the teacher's declarative-config idiom (cobra subcommands reading a
// YAML file into a typed Spec before acting on it) and on yaml.v3, already
// part of the teacher's dependency stack.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Spec is the root of a pipeline definition file.
type Spec struct {
	Sources []SourceSpec `yaml:"sources"`
	Filters []FilterSpec `yaml:"filters"`
	Sinks   []SinkSpec   `yaml:"sinks"`
}

// SourceSpec declares one publisher and the discipline the scheduler should
// run it under.
type SourceSpec struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"` // iterable | csv_reader | never | state_iterated
	Discipline string         `yaml:"discipline"`
	IntervalMS int            `yaml:"interval_ms"`
	Values     []float64         `yaml:"values"`      // type: iterable
	File       string            `yaml:"file"`         // type: csv_reader
	HasHeader  bool              `yaml:"has_header"`   // type: csv_reader
	State      map[string]float64 `yaml:"state"`       // type: state_iterated: initial, limit, step
}

func (s SourceSpec) interval() time.Duration {
	if s.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(s.IntervalMS) * time.Millisecond
}

// FilterSpec declares one stream operator applied to an upstream source or
// filter, named by Upstream.
type FilterSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // take | take_last | last
	Upstream string `yaml:"upstream"`
	Count    int    `yaml:"count"`
	Default  any    `yaml:"default"`
	HasDefault bool `yaml:"has_default"`
}

// SinkSpec declares one blocking sink subscribed to an upstream source or
// filter.
type SinkSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"` // csv_writer | rolling_csv_writer | tcp_streamer
	Upstream    string `yaml:"upstream"`
	File        string `yaml:"file"`        // type: csv_writer
	Directory   string `yaml:"directory"`   // type: rolling_csv_writer
	BaseName    string `yaml:"base_name"`   // type: rolling_csv_writer
	Addr        string `yaml:"addr"`        // type: tcp_streamer
	QueueDepth  int    `yaml:"queue_depth"`
}

// Load reads and parses a pipeline definition from filename.
func Load(filename string) (*Spec, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading %s: %w", filename, err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", filename, err)
	}
	return &spec, nil
}
