package scheduler

import (
	"github.com/cuemby/thingflow/pkg/metrics"
	"github.com/cuemby/thingflow/pkg/sink"
	"github.com/cuemby/thingflow/pkg/stream"
)

const disciplineBlockingSink = "blocking_sink"

// ScheduleBlockingSink subscribes br to every topic it declares on upstream
// and runs its worker goroutine, registering it as an active schedule so
// RunForever waits for it to drain and Stop() can ask it to exit early.
// Grounded on BlockingSubscriber's constructor (subscribe to each declared
// topic, register request_stop as the schedule's cancel thunk, start the
// worker thread).
func ScheduleBlockingSink(s *Scheduler, upstream stream.Publisher, br *sink.Bridge) (Cancel, error) {
	disposers := make([]stream.Dispose, 0, len(br.Topics()))
	for _, topic := range br.Topics() {
		dispose, err := upstream.Subscribe(br, topic, topic)
		if err != nil {
			for _, d := range disposers {
				d()
			}
			return nil, err
		}
		disposers = append(disposers, dispose)
	}

	cancel := func() {
		br.RequestStop()
		for _, d := range disposers {
			d()
		}
	}
	s.recordActive(br, cancel)
	metrics.ActiveSchedules.WithLabelValues(disciplineBlockingSink).Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.ActiveSchedules.WithLabelValues(disciplineBlockingSink).Dec()
		err := br.Run()
		if err != nil {
			s.enqueue(func() { s.setFatal(wrapScheduleError(br, err)) })
			return
		}
		s.enqueue(func() { s.removeActive(br) })
	}()
	return cancel, nil
}
