package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"framepump/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "framepump",
	Short:         "Push encoded video through a decoding transform",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitFromEnv()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(decodeCmd, generateCmd, statusCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.L().Error("framepump failed", "err", err)
		os.Exit(1)
	}
}
