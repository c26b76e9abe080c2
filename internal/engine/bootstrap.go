package engine

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"framepump/internal/config"
	"framepump/internal/logging"
	"framepump/internal/pipeline"
	"framepump/internal/telemetry"
	"framepump/internal/transport"
)

// Options are process-level overrides that do not belong in the config file.
type Options struct {
	Stdout io.Writer // stdout sink output
}

// Bootstrap starts listening, configures the transform and wires the
// pipeline. Negotiation failures are returned here, before any unit is
// produced.
func Bootstrap(cfg config.File, opts Options) (*Engine, error) {
	runID := uuid.NewString()
	log := logging.For("engine").With("run_id", runID)

	reg := prometheus.NewRegistry()
	e := &Engine{runID: runID, registry: reg, log: log}

	// 1. transport server
	if cfg.Server.GRPCPort > 0 {
		srv, err := transport.StartServer(cfg.Server.GRPCPort)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		e.transport = srv
	}

	// 2. pipeline runner
	runner, err := pipeline.Compile(cfg, pipeline.CompileOptions{
		Metrics: telemetry.NewMetrics(reg),
		RunID:   runID,
		Stdout:  opts.Stdout,
	})
	if err != nil {
		if e.transport != nil {
			e.transport.Stop()
		}
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	e.runner = runner

	// 3. metrics
	if cfg.Server.MetricsPort > 0 {
		e.metrics = telemetry.NewServer(cfg.Server.MetricsPort, reg)
	}

	log.Info("engine ready",
		"source", cfg.Source.Kind,
		"output", cfg.Transform.OutputSubtype,
		"sinks", cfg.Sinks,
		"grpc_port", cfg.Server.GRPCPort,
		"metrics_port", cfg.Server.MetricsPort)
	return e, nil
}
