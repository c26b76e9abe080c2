package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"framepump/internal/media"
	"framepump/sink"
)

/* ────────── public config ────────── */
type Config struct {
	DelayMS      int       `koanf:"delay_ms"`      // artificial per-unit delay
	PrintCounter bool      `koanf:"print_counter"` // prepend seq#
	Out          io.Writer `koanf:"-"`             // defaults to os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu     sync.Mutex
	count  uint64
	bytes  uint64
	closed bool
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(u media.Unit) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.bytes += uint64(len(u.Data))

	var err error
	if d.cfg.PrintCounter {
		_, err = fmt.Fprintf(d.cfg.Out, "[sink %06d] Sample time: %d ms duration: %d ms\n",
			d.count, u.PresentationTime.Milliseconds(), u.Duration.Milliseconds())
	} else {
		_, err = fmt.Fprintf(d.cfg.Out, "Sample time: %d ms duration: %d ms\n",
			u.PresentationTime.Milliseconds(), u.Duration.Milliseconds())
	}
	return err
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.cfg.Out == nil {
		return nil
	}
	d.closed = true
	_, err := fmt.Fprintf(d.cfg.Out, "Total count %d (%s)\n", d.count, humanize.Bytes(d.bytes))
	return err
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
