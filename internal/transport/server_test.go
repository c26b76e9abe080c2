package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startBuf(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	cc, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return srv, cc
}

func TestHealth_FollowsStream(t *testing.T) {
	srv, cc := startBuf(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, tc := range []struct {
		serving bool
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{false, healthpb.HealthCheckResponse_NOT_SERVING},
		{true, healthpb.HealthCheckResponse_SERVING},
		{false, healthpb.HealthCheckResponse_NOT_SERVING},
	} {
		srv.SetServing(tc.serving)
		for _, svc := range []string{"", StreamService} {
			got, err := Check(ctx, cc, svc)
			if err != nil {
				t.Fatalf("check %q: %v", svc, err)
			}
			if got != tc.want {
				t.Fatalf("check %q = %v, want %v", svc, got, tc.want)
			}
		}
	}
}

func TestHealth_UnknownService(t *testing.T) {
	_, cc := startBuf(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Check(ctx, cc, "nope")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
