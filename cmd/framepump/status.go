package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"framepump/internal/transport"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the health of a running decode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cc, err := transport.Dial(addr)
		if err != nil {
			return err
		}
		defer cc.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		st, err := transport.Check(ctx, cc, transport.StreamService)
		if err != nil {
			return fmt.Errorf("health %s: %w", addr, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.String())
		if st != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("stream is %s", st)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("addr", "localhost:7070", "engine gRPC address")
	statusCmd.Flags().Duration("timeout", 3*time.Second, "request timeout")
}
