/*
Package rlog provides thingflow's structured logging conventions on top of
zerolog.

Every thingflow component that logs — the scheduler, publishers, the blocking
sink bridge, adapters — takes a zerolog.Logger through its constructor rather
than reading one off a package global. rlog.New builds that logger from a
Config; rlog.WithComponent and rlog.WithTopic derive scoped child loggers for
passing further down.

# Usage

	logger := rlog.New(rlog.Config{Level: rlog.InfoLevel, JSONOutput: true})
	sched := scheduler.New(logger, 0)
	pub := stream.NewBase("temp-sensor", []string{"default"}, rlog.WithComponent(logger, "temp-sensor"))

Tests and bare library use that don't care about log output can pass
rlog.Nop().
*/
package rlog
