package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"framepump/internal/pipeline"
	"framepump/internal/transport"
)

const shutdownTimeout = 5 * time.Second

type Engine struct {
	runID     string
	registry  *prometheus.Registry
	transport *transport.Server
	metrics   *http.Server
	runner    *pipeline.Runner
	log       *slog.Logger
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Run streams until the source is exhausted, the stream fails or ctx is
// cancelled, then stops the servers. A cancelled run still drains the
// units already inside the transform and reports ctx's error.
func (e *Engine) Run(ctx context.Context) (pipeline.Summary, error) {
	g, gctx := errgroup.WithContext(ctx)

	if e.transport != nil {
		g.Go(func() error {
			if err := e.transport.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}
	if e.metrics != nil {
		g.Go(func() error {
			e.log.Info("metrics listening", "addr", e.metrics.Addr)
			if err := e.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	var sum pipeline.Summary
	g.Go(func() error {
		defer e.shutdown()
		e.runner.SubscribeState(e.onState)
		var err error
		sum, err = e.runner.Run(gctx)
		return err
	})

	err := g.Wait()
	e.log.Info("engine stopped", "units", sum.Units, "bytes", sum.Bytes, "elapsed", sum.Elapsed)
	return sum, err
}

func (e *Engine) onState(s pipeline.State) {
	if e.transport != nil {
		e.transport.SetServing(s == pipeline.Feeding)
	}
}

func (e *Engine) shutdown() {
	if e.transport != nil {
		e.transport.Stop()
	}
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			e.log.Warn("metrics shutdown", "err", err)
		}
	}
}
