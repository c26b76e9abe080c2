package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	SupportedSchema = "v1"
	envPrefix       = "FRAMEPUMP__"

	DefaultGRPCPort    = 7070
	DefaultMetricsPort = 9100
)

type SourceSpec struct {
	Kind   string `koanf:"kind"`   // file|kafka
	Path   string `koanf:"path"`   // file source; "-" is stdin
	Config string `koanf:"config"` // kafka source config file
}

type TransformSpec struct {
	OutputSubtype   string `koanf:"output_subtype"`
	FrameRate       string `koanf:"frame_rate"` // "num/den"
	ProvidesSamples bool   `koanf:"provides_samples"`
	MaxQueuedFrames int    `koanf:"max_queued_frames"`
	DumpTypes       bool   `koanf:"dump_types"`
}

type ChunkSpec struct {
	Min  int    `koanf:"min"`
	Max  int    `koanf:"max"`
	Seed uint64 `koanf:"seed"` // 0 picks a time-based seed
}

type BusySpec struct {
	MaxRetries int           `koanf:"max_retries"`
	Backoff    time.Duration `koanf:"backoff"`
}

type DriverSpec struct {
	Chunk ChunkSpec `koanf:"chunk"`
	Busy  BusySpec  `koanf:"busy"`
}

type StdoutSinkSpec struct {
	PrintCounter bool `koanf:"print_counter"`
	DelayMS      int  `koanf:"delay_ms"`
}

type KafkaSinkSpec struct {
	Brokers      []string `koanf:"brokers"`
	Topic        string   `koanf:"topic"`
	RequiredAcks int16    `koanf:"required_acks"`
}

type SinkConfigs struct {
	Stdout StdoutSinkSpec `koanf:"stdout"`
	Kafka  KafkaSinkSpec  `koanf:"kafka"`
}

type ServerSpec struct {
	GRPCPort    int `koanf:"grpc_port"`    // 0 disables
	MetricsPort int `koanf:"metrics_port"` // 0 disables
}

type LogSpec struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type File struct {
	SchemaVersion string        `koanf:"schema_version"`
	Log           LogSpec       `koanf:"log"`
	Source        SourceSpec    `koanf:"source"`
	Transform     TransformSpec `koanf:"transform"`
	Driver        DriverSpec    `koanf:"driver"`
	Sinks         []string      `koanf:"sinks"`
	SinkConfigs   SinkConfigs   `koanf:"sink_configs"`
	Server        ServerSpec    `koanf:"server"`
}

// Load merges the YAML file at path (optional) with env-vars
// (prefix `FRAMEPUMP__`, delimiter `__`), checks schema_version and fills
// defaults. Relative source paths resolve against the file's directory.
// Callers run Validate once they have applied their own overrides.
func Load(path string) (File, error) {
	k := koanf.New(".")
	for key, v := range map[string]any{
		"server.grpc_port":    DefaultGRPCPort,
		"server.metrics_port": DefaultMetricsPort,
	} {
		if err := k.Set(key, v); err != nil {
			return File{}, err
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return File{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return File{}, err
	}

	var cfg File
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	ApplyDefaults(&cfg)
	if path != "" {
		base := filepath.Dir(path)
		cfg.Source.Path = resolve(base, cfg.Source.Path)
		cfg.Source.Config = resolve(base, cfg.Source.Config)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || p == "-" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func ApplyDefaults(c *File) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "file"
	}
	if c.Transform.OutputSubtype == "" {
		c.Transform.OutputSubtype = "NV12"
	}
	if c.Transform.FrameRate == "" {
		c.Transform.FrameRate = "25/1"
	}
	if c.Transform.MaxQueuedFrames == 0 {
		c.Transform.MaxQueuedFrames = 8
	}
	if c.Driver.Chunk.Min == 0 {
		c.Driver.Chunk.Min = 500
	}
	if c.Driver.Chunk.Max == 0 {
		c.Driver.Chunk.Max = 1500
	}
	if c.Driver.Busy.MaxRetries == 0 {
		c.Driver.Busy.MaxRetries = 1000
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []string{"stdout"}
	}
}

func (c File) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for file sources"))
		}
	case "kafka":
	default:
		errs = append(errs, fmt.Errorf("unsupported source kind %q", c.Source.Kind))
	}
	if c.Driver.Chunk.Min < 1 || c.Driver.Chunk.Max < c.Driver.Chunk.Min {
		errs = append(errs, fmt.Errorf("driver.chunk bounds [%d, %d] invalid", c.Driver.Chunk.Min, c.Driver.Chunk.Max))
	}
	if c.Server.GRPCPort < 0 || c.Server.MetricsPort < 0 {
		errs = append(errs, errors.New("server ports must not be negative"))
	}
	return errors.Join(errs...)
}
