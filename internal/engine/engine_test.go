package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"framepump/internal/config"
	"framepump/internal/media"
	"framepump/internal/transform"
	"framepump/internal/transform/refdec"
)

func testConfig(t *testing.T, segs ...refdec.Segment) config.File {
	t.Helper()
	data, err := refdec.Generator{Segments: segs}.Bytes()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "in.h264")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	var cfg config.File
	config.ApplyDefaults(&cfg)
	cfg.Source.Path = path
	return cfg
}

func TestEngine_RunsToCompletion(t *testing.T) {
	cfg := testConfig(t,
		refdec.Segment{Size: media.Size{Width: 32, Height: 32}, Frames: 4},
		refdec.Segment{Size: media.Size{Width: 64, Height: 32}, Frames: 2},
	)
	var out bytes.Buffer
	e, err := Bootstrap(cfg, Options{Stdout: &out})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if e.RunID() == "" {
		t.Fatal("empty run id")
	}

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Units != 6 {
		t.Fatalf("units = %d, want 6", sum.Units)
	}
	if sum.Stats.FormatChanges != 2 {
		t.Fatalf("format changes = %d, want 2", sum.Stats.FormatChanges)
	}
	if !strings.Contains(out.String(), "Total count 6") {
		t.Fatalf("missing summary in:\n%s", out.String())
	}
	n, err := testutil.GatherAndCount(e.Registry(), "framepump_driver_units_total")
	if err != nil || n != 1 {
		t.Fatalf("units metric series = %d, err = %v", n, err)
	}
}

func TestEngine_NegotiationFailsAtBootstrap(t *testing.T) {
	cfg := testConfig(t, refdec.Segment{Size: media.Size{Width: 16, Height: 16}, Frames: 1})
	cfg.Transform.OutputSubtype = "P010"

	_, err := Bootstrap(cfg, Options{Stdout: &bytes.Buffer{}})
	var ne *transform.NegotiationError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
}

func TestEngine_CancelledRunReportsContextError(t *testing.T) {
	cfg := testConfig(t, refdec.Segment{Size: media.Size{Width: 16, Height: 16}, Frames: 3})
	e, err := Bootstrap(cfg, Options{Stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
