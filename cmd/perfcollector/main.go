package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/perfcollector/internal/config"
	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/exporter"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/metrics"
	"codeberg.org/mutker/perfcollector/internal/perf"
	"codeberg.org/mutker/perfcollector/internal/pid"
	"codeberg.org/mutker/perfcollector/internal/sampler"
	"codeberg.org/mutker/perfcollector/internal/sink"
)

const (
	exitOK    = 0
	exitAbort = 1
)

func main() {
	os.Exit(realMain(context.Background(), os.Args[1:], perf.SystemKernel()))
}

// realMain returns exitAbort when configuration, the PID file, counter
// acquisition or the output fails, and exitOK after a cancelled run.
func realMain(ctx context.Context, args []string, kernel perf.Kernel) int {
	cfg, err := config.Load(config.WithArgs(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitAbort
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().
		Dur("interval", cfg.Interval).
		Str("output", cfg.Output).
		Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logError(err, "Failed to write PID file")
		return exitAbort
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go handleSignals(ctx, cancel)

	if err := run(ctx, cfg, kernel); err != nil {
		logError(err, "Sampling aborted")
		return exitAbort
	}

	logger.Info().Msg("Exiting...")

	return exitOK
}

func run(ctx context.Context, cfg *config.Config, kernel perf.Kernel) error {
	samplerCfg := sampler.DefaultConfig()
	samplerCfg.Interval = cfg.Interval

	s, err := sampler.New(samplerCfg, kernel, sinkOpener(cfg))
	if err != nil {
		return err
	}

	logger.Info().Str("output", cfg.Output).Msg("Sampling hardware counters")

	return s.Run(ctx)
}

// The opener runs only after every counter has been acquired, so a failed
// acquisition never creates or truncates the output file.
func sinkOpener(cfg *config.Config) sampler.SinkOpener {
	return func() (sampler.Sink, error) {
		csv, err := sink.OpenCSV(cfg.Output)
		if err != nil {
			return nil, err
		}
		sinks := []sampler.Sink{csv}

		archiveCfg := metrics.DefaultConfig()
		archiveCfg.Enabled = cfg.Telemetry
		archiveCfg.DBPath = cfg.TelemetryDB

		archive, err := metrics.NewService(archiveCfg, logger.Default())
		if err != nil {
			return nil, errors.Join(err, sink.Multi(sinks...).Close())
		}
		sinks = append(sinks, archive)

		if cfg.MetricsListen != "" {
			exp := exporter.New(cfg.MetricsListen, logger.Default())
			if err := exp.Start(); err != nil {
				return nil, errors.Join(err, sink.Multi(sinks...).Close())
			}
			sinks = append(sinks, exp)
		}

		return sink.Multi(sinks...), nil
	}
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
