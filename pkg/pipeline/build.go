package pipeline

import (
	"fmt"

	adaptercsv "github.com/cuemby/thingflow/adapter/csv"
	adaptertcp "github.com/cuemby/thingflow/adapter/tcp"
	"github.com/cuemby/thingflow/pkg/operator"
	"github.com/cuemby/thingflow/pkg/scheduler"
	"github.com/cuemby/thingflow/pkg/sink"
	"github.com/cuemby/thingflow/pkg/source"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Graph is a fully wired, not-yet-scheduled pipeline: every declared
// source, filter and sink has been constructed and subscribed to its
// upstream. Run schedules every source and blocks until the scheduler
// retires.
type Graph struct {
	scheduler *scheduler.Scheduler
	sources   []wiredSource
}

type wiredSource struct {
	spec SourceSpec
	pub  stream.Publisher
}

// Build constructs a Graph from spec: every source and filter named as an
// Upstream must be declared earlier in the same section or in a section
// processed earlier (sources, then filters, then sinks).
//
// Note: sinks of type csv_writer/rolling_csv_writer expect SensorEvent
// events (adapter/csv.SensorEvent); wire them downstream of a csv_reader
// source or a filter that already produces SensorEvent values. An
// "iterable" source emits raw float64 values, suited to tcp_streamer or a
// take/take_last/last filter chain.
func Build(spec *Spec, sched *scheduler.Scheduler, logger zerolog.Logger) (*Graph, error) {
	publishers := make(map[string]stream.Publisher, len(spec.Sources)+len(spec.Filters))
	g := &Graph{scheduler: sched}

	for _, ss := range spec.Sources {
		pub, err := buildSource(ss, logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: source %q: %w", ss.Name, err)
		}
		publishers[ss.Name] = pub
		g.sources = append(g.sources, wiredSource{spec: ss, pub: pub})
	}

	for _, fs := range spec.Filters {
		upstream, ok := publishers[fs.Upstream]
		if !ok {
			return nil, fmt.Errorf("pipeline: filter %q references unknown upstream %q", fs.Name, fs.Upstream)
		}
		f, err := buildFilter(fs, upstream, logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: filter %q: %w", fs.Name, err)
		}
		publishers[fs.Name] = f

		// A filter that also implements directPuller (take(0), returning a
		// source.Empty with no upstream subscription) has to be scheduled
		// like a root source, or its deferred completion never fires.
		if puller, ok := f.(directPuller); ok {
			g.sources = append(g.sources, wiredSource{
				spec: SourceSpec{Name: fs.Name, Discipline: "recurring"},
				pub:  puller,
			})
		}
	}

	for _, sk := range spec.Sinks {
		upstream, ok := publishers[sk.Upstream]
		if !ok {
			return nil, fmt.Errorf("pipeline: sink %q references unknown upstream %q", sk.Name, sk.Upstream)
		}
		if err := buildSink(sk, upstream, sched, logger); err != nil {
			return nil, fmt.Errorf("pipeline: sink %q: %w", sk.Name, err)
		}
	}

	return g, nil
}

func buildSource(ss SourceSpec, logger zerolog.Logger) (stream.Publisher, error) {
	switch ss.Type {
	case "iterable":
		values := make([]any, len(ss.Values))
		for i, v := range ss.Values {
			values[i] = v
		}
		it := source.NewSliceIterator(values)
		return source.NewIterable(ss.Name, it, logger), nil
	case "never":
		return source.NewNever(ss.Name, logger), nil
	case "csv_reader":
		if ss.File == "" {
			return nil, fmt.Errorf("csv_reader source requires file")
		}
		return adaptercsv.NewReader(ss.Name, ss.File, adaptercsv.SensorEventMapper{}, ss.HasHeader, logger)
	case "state_iterated":
		initial, ok := ss.State["initial"]
		if !ok {
			return nil, fmt.Errorf("state_iterated source %q requires state.initial", ss.Name)
		}
		limit, ok := ss.State["limit"]
		if !ok {
			return nil, fmt.Errorf("state_iterated source %q requires state.limit", ss.Name)
		}
		step := ss.State["step"]
		return source.NewStateIterated(ss.Name, initial,
			func(s any) bool { return s.(float64) < limit },
			func(s any) any { return s.(float64) + step },
			func(s any) any { return s },
			logger), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", ss.Type)
	}
}

func buildFilter(fs FilterSpec, upstream stream.Publisher, logger zerolog.Logger) (stream.Publisher, error) {
	switch fs.Type {
	case "take":
		return operator.Take(upstream, fs.Count, logger)
	case "take_last":
		return operator.TakeLast(upstream, fs.Count, logger)
	case "last":
		return operator.Last(upstream, fs.HasDefault, fs.Default, logger)
	default:
		return nil, fmt.Errorf("unknown filter type %q", fs.Type)
	}
}

func buildSink(sk SinkSpec, upstream stream.Publisher, sched *scheduler.Scheduler, logger zerolog.Logger) error {
	switch sk.Type {
	case "csv_writer":
		if sk.File == "" {
			return fmt.Errorf("csv_writer sink requires file")
		}
		w, err := adaptercsv.NewWriter(sk.File, adaptercsv.SensorEventMapper{}, logger)
		if err != nil {
			return err
		}
		br := sink.New(sk.Name, []string{stream.DefaultTopic}, w, logger, sk.QueueDepth)
		_, err = scheduler.ScheduleBlockingSink(sched, upstream, br)
		return err
	case "rolling_csv_writer":
		if sk.Directory == "" || sk.BaseName == "" {
			return fmt.Errorf("rolling_csv_writer sink requires directory and base_name")
		}
		w := adaptercsv.NewRollingWriter(sk.Directory, sk.BaseName, adaptercsv.SensorEventMapper{}, nil, logger)
		br := sink.New(sk.Name, []string{stream.DefaultTopic}, w, logger, sk.QueueDepth)
		_, err := scheduler.ScheduleBlockingSink(sched, upstream, br)
		return err
	case "tcp_streamer":
		if sk.Addr == "" {
			return fmt.Errorf("tcp_streamer sink requires addr")
		}
		marshal := func(event stream.Event) (string, error) { return fmt.Sprintf("%v", event), nil }
		st := adaptertcp.NewStreamer(sk.Addr, marshal, 0, logger)
		br := sink.New(sk.Name, []string{stream.DefaultTopic}, st, logger, sk.QueueDepth)
		_, err := scheduler.ScheduleBlockingSink(sched, upstream, br)
		return err
	default:
		return fmt.Errorf("unknown sink type %q", sk.Type)
	}
}

// Schedule starts every declared source under its configured discipline.
// Sinks were already scheduled during Build, since ScheduleBlockingSink
// needs to run before the sources it's downstream of start producing.
func (g *Graph) Schedule() error {
	for _, ws := range g.sources {
		if err := scheduleOne(g.scheduler, ws); err != nil {
			return fmt.Errorf("pipeline: scheduling source %q: %w", ws.spec.Name, err)
		}
	}
	return nil
}

func scheduleOne(sched *scheduler.Scheduler, ws wiredSource) error {
	switch ws.spec.Discipline {
	case "", "recurring":
		puller, ok := ws.pub.(directPuller)
		if !ok {
			return fmt.Errorf("source does not support recurring scheduling")
		}
		scheduler.ScheduleRecurring(sched, puller)
	case "periodic":
		puller, ok := ws.pub.(directPuller)
		if !ok {
			return fmt.Errorf("source does not support periodic scheduling")
		}
		scheduler.SchedulePeriodic(sched, puller, ws.spec.interval())
	default:
		return fmt.Errorf("unsupported discipline %q", ws.spec.Discipline)
	}
	return nil
}

type directPuller interface {
	SchedulerAttach(unscheduleHook func(), enqueue stream.EnqueueFunc)
	Observe() (bool, error)
}

// Run schedules every source and runs the scheduler's main loop until it
// retires, returning any fatal error.
func (g *Graph) Run() error {
	if err := g.Schedule(); err != nil {
		return err
	}
	return g.scheduler.RunForever()
}
