package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"framepump/internal/logging"
	"framepump/internal/media"
	"framepump/sink"
)

// Summary describes one finished run.
type Summary struct {
	Units   uint64
	Bytes   uint64
	Elapsed time.Duration
	Stats   Stats
}

// Runner pushes every unit a Driver yields to its sinks.
type Runner struct {
	driver  *Driver
	sinks   []sink.Adapter
	closers []io.Closer
	log     *slog.Logger

	mu   sync.Mutex
	subs []func(State)
}

func NewRunner(d *Driver) *Runner {
	return &Runner{driver: d, log: logging.For("runner")}
}

func (r *Runner) AddSink(s sink.Adapter) { r.sinks = append(r.sinks, s) }

// AddCloser registers a resource released when the run ends, such as the
// source feeding the driver.
func (r *Runner) AddCloser(c io.Closer) { r.closers = append(r.closers, c) }

func (r *Runner) Driver() *Driver { return r.driver }

// SubscribeState registers fn to hear when the run starts and finishes.
func (r *Runner) SubscribeState(fn func(State)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

func (r *Runner) notify(s State) {
	r.mu.Lock()
	handlers := append([]func(State){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(s)
	}
}

/*──────── unit routing ───────*/
func (r *Runner) pushUnit(u media.Unit) error {
	for _, s := range r.sinks {
		if err := s.Push(u); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the stream to its end and closes sinks and closers. A stream
// error or a sink error is returned together with the partial summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.driver == nil {
		return Summary{}, errors.New("runner: no driver configured")
	}
	start := time.Now()
	r.notify(Feeding)

	var sum Summary
	var runErr error
	for u, err := range r.driver.Units(ctx) {
		if err != nil {
			runErr = err
			break
		}
		if err := r.pushUnit(u); err != nil {
			runErr = fmt.Errorf("sink: %w", err)
			break
		}
		sum.Units++
		sum.Bytes += uint64(len(u.Data))
	}
	sum.Elapsed = time.Since(start)
	sum.Stats = r.driver.Stats()

	runErr = errors.Join(runErr, r.Close())
	r.notify(Finished)
	if runErr != nil {
		r.log.Error("run failed", "units", sum.Units, "err", runErr)
	} else {
		r.log.Info("run finished", "units", sum.Units, "bytes", sum.Bytes, "elapsed", sum.Elapsed)
	}
	return sum, runErr
}

// Close releases sinks then closers. Later calls are no-ops.
func (r *Runner) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.sinks, r.closers = nil, nil
	return errors.Join(errs...)
}
