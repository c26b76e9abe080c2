package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"framepump/internal/logging"
	"framepump/internal/media"
	"framepump/internal/telemetry"
	"framepump/internal/transform"
	"framepump/source"
)

type State int

const (
	Feeding State = iota
	Draining
	Finished
)

func (s State) String() string {
	switch s {
	case Feeding:
		return "feeding"
	case Draining:
		return "draining"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultMinChunk       = 500
	DefaultMaxChunk       = 1500
	DefaultMaxBusyRetries = 1000
)

// ErrTransformStalled ends a stream whose transform kept reporting busy
// without making progress.
var ErrTransformStalled = errors.New("transform stalled")

// SourceError is a failure of the byte source, as opposed to the transform.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "source: " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

// Stats are cumulative counters of one Driver.
type Stats struct {
	Chunks        uint64
	ChunkBytes    uint64
	BusyRetries   uint64
	FormatChanges uint64
	Units         uint64
	UnitBytes     uint64
}

type DriverOption func(*Driver)

func WithSizer(s source.Sizer) DriverOption { return func(d *Driver) { d.sizer = s } }

func WithDriverLogger(l *slog.Logger) DriverOption { return func(d *Driver) { d.log = l } }

func WithMetrics(m *telemetry.Metrics) DriverOption { return func(d *Driver) { d.metrics = m } }

// WithMaxBusyRetries bounds the busy results tolerated without progress;
// n <= 0 removes the bound.
func WithMaxBusyRetries(n int) DriverOption { return func(d *Driver) { d.maxBusy = n } }

// WithBusyBackoff waits between busy retries.
func WithBusyBackoff(wait time.Duration) DriverOption { return func(d *Driver) { d.backoff = wait } }

// Driver feeds a configured Session from a byte source and yields the
// decoded units. It is single-goroutine; Next must not be called
// concurrently.
type Driver struct {
	s       *transform.Session
	src     source.Reader
	sizer   source.Sizer
	log     *slog.Logger
	metrics *telemetry.Metrics
	maxBusy int
	backoff time.Duration

	state     State
	pending   *media.Chunk
	seq       uint64
	busy      int
	skipFeed  bool
	cancelErr error
	err       error
	stats     Stats
}

func NewDriver(s *transform.Session, src source.Reader, opts ...DriverOption) *Driver {
	d := &Driver{
		s:       s,
		src:     src,
		sizer:   source.RandomSize(DefaultMinChunk, DefaultMaxChunk, uint64(time.Now().UnixNano())),
		log:     logging.For("driver"),
		maxBusy: DefaultMaxBusyRetries,
	}
	for _, o := range opts {
		o(d)
	}
	d.metrics.SetState(int(d.state))
	return d
}

func (d *Driver) State() State { return d.state }

func (d *Driver) Stats() Stats { return d.stats }

// Next runs the loop until one unit is available. It returns io.EOF once
// the stream has finished; any other error is terminal and returned again
// by every later call. A cancelled ctx stops feeding, drains the units the
// transform still holds, and then ends the stream with ctx's error.
func (d *Driver) Next(ctx context.Context) (media.Unit, error) {
	if d.err != nil {
		return media.Unit{}, d.err
	}
	for {
		switch d.state {
		case Finished:
			if d.cancelErr != nil {
				d.err = d.cancelErr
				return media.Unit{}, d.err
			}
			return media.Unit{}, io.EOF
		case Feeding:
			if err := ctx.Err(); err != nil {
				if err := d.abandon(err); err != nil {
					return media.Unit{}, d.fail(err)
				}
				break
			}
			if d.skipFeed {
				d.skipFeed = false
				break
			}
			if err := d.feed(ctx); err != nil {
				return media.Unit{}, d.fail(err)
			}
		}

		size, known := d.s.OutputSampleSize()
		provide := !d.s.OutputAllocates() && known
		out, err := d.s.Pull(provide, size)
		if err != nil {
			return media.Unit{}, d.fail(err)
		}
		switch out.Kind {
		case transform.PullUnit:
			d.busy = 0
			d.stats.Units++
			d.stats.UnitBytes += uint64(len(out.Unit.Data))
			d.metrics.UnitYielded(len(out.Unit.Data))
			return out.Unit, nil
		case transform.PullNeedMoreInput:
			if d.state == Draining {
				d.setState(Finished)
			}
		case transform.PullFormatChanged:
			d.stats.FormatChanges++
			d.metrics.FormatChanged()
			if err := d.s.Renegotiate(); err != nil {
				return media.Unit{}, d.fail(err)
			}
			d.skipFeed = true
		}
	}
}

// Units is Next as a sequence. A failed stream yields its error last.
func (d *Driver) Units(ctx context.Context) iter.Seq2[media.Unit, error] {
	return func(yield func(media.Unit, error) bool) {
		for {
			u, err := d.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(media.Unit{}, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (d *Driver) feed(ctx context.Context) error {
	if d.pending == nil {
		b, err := d.src.Read(ctx, d.sizer.Next())
		if err != nil && !errors.Is(err, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return d.abandon(ctxErr)
			}
			return &SourceError{Err: err}
		}
		if len(b) == 0 {
			if err := d.s.SignalEndOfInput(); err != nil {
				return err
			}
			d.setState(Draining)
			return nil
		}
		d.seq++
		d.pending = &media.Chunk{Data: b, Seq: d.seq}
	}

	out, err := d.s.Feed(*d.pending)
	if err != nil {
		return err
	}
	if out == transform.FeedBusy {
		d.busy++
		d.stats.BusyRetries++
		d.metrics.Busy()
		if d.maxBusy > 0 && d.busy > d.maxBusy {
			return fmt.Errorf("%w: chunk %d refused %d times", ErrTransformStalled, d.pending.Seq, d.busy)
		}
		if d.backoff > 0 {
			t := time.NewTimer(d.backoff)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
		return nil
	}
	d.busy = 0
	d.stats.Chunks++
	d.stats.ChunkBytes += uint64(len(d.pending.Data))
	d.metrics.ChunkFed(len(d.pending.Data))
	d.pending = nil
	return nil
}

// abandon stops feeding after cancellation and starts the drain.
func (d *Driver) abandon(cause error) error {
	if d.pending != nil {
		d.log.Warn("dropping pending chunk on cancel", "seq", d.pending.Seq, "bytes", len(d.pending.Data))
		d.pending = nil
	}
	d.cancelErr = cause
	if err := d.s.SignalEndOfInput(); err != nil {
		return err
	}
	d.setState(Draining)
	return nil
}

func (d *Driver) setState(s State) {
	if d.state == s {
		return
	}
	d.log.Debug("state change", "from", d.state.String(), "to", s.String())
	d.state = s
	d.metrics.SetState(int(s))
}

func (d *Driver) fail(err error) error {
	var (
		se *SourceError
		ne *transform.NegotiationError
	)
	kind := "transform"
	switch {
	case errors.As(err, &se):
		kind = "source"
	case errors.As(err, &ne):
		kind = "negotiation"
	case errors.Is(err, ErrTransformStalled):
		kind = "stalled"
	}
	d.metrics.Failed(kind)
	d.log.Error("stream failed", "kind", kind, "state", d.state.String(), "err", err)
	d.setState(Finished)
	d.err = err
	return err
}
