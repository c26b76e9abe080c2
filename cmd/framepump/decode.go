package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"framepump/internal/config"
	"framepump/internal/engine"
	"framepump/internal/logging"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode an H.264 elementary stream and print every unit",
	Long: `decode feeds the input in random-sized chunks to the decoder, prints the
presentation time and duration of every decoded unit and a final count.
The input is a file, "-" for stdin, or the source configured in --config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	f := decodeCmd.Flags()
	f.StringP("config", "c", "", "YAML config file")
	f.StringP("subtype", "s", "", "desired output subtype (NV12, YV12, IYUV, I420, YUY2)")
	f.String("frame-rate", "", "input frame rate as num/den")
	f.Int("min-chunk", 0, "smallest chunk fed to the decoder")
	f.Int("max-chunk", 0, "largest chunk fed to the decoder")
	f.Uint64("seed", 0, "chunk size seed (0 is time based)")
	f.Int("max-busy-retries", 0, "busy results tolerated without progress (negative is unbounded)")
	f.Bool("provides-samples", false, "let the decoder allocate output samples")
	f.Bool("print-counter", false, "prefix every line with the unit counter")
	f.Bool("dump-types", false, "log negotiated media types at debug level")
	f.Int("grpc-port", 0, "gRPC health port (0 disables)")
	f.Int("metrics-port", 0, "Prometheus port (0 disables)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Source.Kind = "file"
		cfg.Source.Path = args[0]
	}
	applyFlags(cmd.Flags(), &cfg)
	if cfg.Log.Level != "" || cfg.Log.JSON {
		logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	}

	e, err := engine.Bootstrap(cfg, engine.Options{Stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	_, err = e.Run(cmd.Context())
	return err
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(f *pflag.FlagSet, cfg *config.File) {
	f.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "subtype":
			cfg.Transform.OutputSubtype, _ = f.GetString(fl.Name)
		case "frame-rate":
			cfg.Transform.FrameRate, _ = f.GetString(fl.Name)
		case "min-chunk":
			cfg.Driver.Chunk.Min, _ = f.GetInt(fl.Name)
		case "max-chunk":
			cfg.Driver.Chunk.Max, _ = f.GetInt(fl.Name)
		case "seed":
			cfg.Driver.Chunk.Seed, _ = f.GetUint64(fl.Name)
		case "max-busy-retries":
			cfg.Driver.Busy.MaxRetries, _ = f.GetInt(fl.Name)
		case "provides-samples":
			cfg.Transform.ProvidesSamples, _ = f.GetBool(fl.Name)
		case "print-counter":
			cfg.SinkConfigs.Stdout.PrintCounter, _ = f.GetBool(fl.Name)
		case "dump-types":
			cfg.Transform.DumpTypes, _ = f.GetBool(fl.Name)
		case "grpc-port":
			cfg.Server.GRPCPort, _ = f.GetInt(fl.Name)
		case "metrics-port":
			cfg.Server.MetricsPort, _ = f.GetInt(fl.Name)
		}
	})
}
