package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"framepump/internal/config"
	"framepump/internal/logging"
	"framepump/internal/media"
	"framepump/internal/telemetry"
	"framepump/internal/transform"
	"framepump/internal/transform/refdec"
	"framepump/sink"
	kafkasink "framepump/sink/kafka"
	"framepump/sink/stdout"
	"framepump/source"
	"framepump/source/file"
	kafkasrc "framepump/source/kafka"
)

// CompileOptions carries the process-level collaborators of a run.
type CompileOptions struct {
	Metrics *telemetry.Metrics
	RunID   string
	Stdout  io.Writer // stdout sink output; nil means os.Stdout
}

// Compile builds a ready-to-run Runner from cfg. The transform is
// configured here, so negotiation failures surface before any unit is
// produced.
func Compile(cfg config.File, opts CompileOptions) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rate, err := media.ParseRatio(cfg.Transform.FrameRate)
	if err != nil {
		return nil, fmt.Errorf("transform.frame_rate: %w", err)
	}

	src, err := openSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	decOpts := []refdec.Option{
		refdec.WithFrameRate(rate),
		refdec.WithMaxQueuedFrames(cfg.Transform.MaxQueuedFrames),
	}
	if cfg.Transform.ProvidesSamples {
		decOpts = append(decOpts, refdec.WithProvidesSamples())
	}
	var sessOpts []transform.Option
	if cfg.Transform.DumpTypes {
		sessOpts = append(sessOpts, transform.WithDumper(media.NewLogDumper(logging.For("types"))))
	}
	sess := transform.NewSession(refdec.New(decOpts...), sessOpts...)
	input := media.NewVideoType(media.SubtypeH264).Set(media.KeyFrameRate, rate)
	if err := sess.Configure(input, media.Subtype(cfg.Transform.OutputSubtype)); err != nil {
		return nil, errors.Join(err, src.Close())
	}

	seed := cfg.Driver.Chunk.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	drv := NewDriver(sess, src,
		WithSizer(source.RandomSize(cfg.Driver.Chunk.Min, cfg.Driver.Chunk.Max, seed)),
		WithMaxBusyRetries(cfg.Driver.Busy.MaxRetries),
		WithBusyBackoff(cfg.Driver.Busy.Backoff),
		WithMetrics(opts.Metrics),
	)
	r := NewRunner(drv)
	r.AddCloser(src)

	for _, name := range cfg.Sinks {
		sDrv, err := sink.NewAdapter(name)
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}

		switch name {
		case "stdout":
			err = sDrv.Configure(stdout.Config{
				DelayMS:      cfg.SinkConfigs.Stdout.DelayMS,
				PrintCounter: cfg.SinkConfigs.Stdout.PrintCounter,
				Out:          opts.Stdout,
			})
		case "kafka":
			kc := cfg.SinkConfigs.Kafka
			err = sDrv.Configure(kafkasink.Config{
				Brokers: kc.Brokers,
				Topic:   kc.Topic,
				Acks:    kc.RequiredAcks,
				RunID:   opts.RunID,
			})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}
		r.AddSink(sDrv)
	}
	return r, nil
}

func openSource(spec config.SourceSpec) (source.Adapter, error) {
	src, err := source.NewAdapter(spec.Kind)
	if err != nil {
		return nil, err
	}
	switch spec.Kind {
	case "file":
		err = src.Configure(file.Config{Path: spec.Path})
	case "kafka":
		var kc kafkasrc.Config
		if kc, err = kafkasrc.LoadConfig(spec.Config); err == nil {
			err = src.Configure(kc)
		}
	default:
		err = fmt.Errorf("no config block for source %q", spec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", spec.Kind, err)
	}
	return src, nil
}
