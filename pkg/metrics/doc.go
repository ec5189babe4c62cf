/*
Package metrics registers thingflow's Prometheus counters, gauges and
histograms at package init and exposes them through Handler for scraping.

Dispatch metrics (EventsDispatchedTotal, TopicsClosedTotal,
DispatchErrorsTotal, DispatchLatency) are updated by the stream package's
Base on every dispatch call. Scheduler metrics (ActiveSchedules,
ObservationsTotal, PollLatency) are updated by the scheduler package's five
disciplines. Bridge metrics are updated by the sink package's blocking
subscriber bridge.

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
*/
package metrics
