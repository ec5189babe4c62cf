package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/thingflow/pkg/metrics"
	"github.com/cuemby/thingflow/pkg/pipeline"
	"github.com/cuemby/thingflow/pkg/rlog"
	"github.com/cuemby/thingflow/pkg/scheduler"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// exitCode is set by subcommands that need to distinguish a clean shutdown
// (130, SIGINT) from a fatal pipeline error (1) without losing the error
// text cobra already printed.
var exitCode = 0

var rootCmd = &cobra.Command{
	Use:     "thingflow",
	Short:   "thingflow runs declarative reactive dataflow pipelines",
	Long:    `thingflow wires publishers, filters and blocking sinks into a dataflow graph from a YAML pipeline definition and drives it to completion.`,
	Version: Version,
}

var logger = rlog.Nop()

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"thingflow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	logger = rlog.New(rlog.Config{
		Level:      rlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Load and run a pipeline definition until it completes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		taskQueueDepth, _ := cmd.Flags().GetInt("task-queue-depth")

		spec, err := pipeline.Load(args[0])
		if err != nil {
			return err
		}

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server stopped")
				}
			}()
			logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
		}

		sched := scheduler.New(logger, taskQueueDepth)
		graph, err := pipeline.Build(spec, sched, logger)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Warn().Msg("interrupt received, stopping scheduler")
			exitCode = 130
			sched.Stop()
		}()

		return graph.Run()
	},
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")
	runCmd.Flags().Int("task-queue-depth", 256, "Buffer depth of the scheduler's internal task queue")
}
