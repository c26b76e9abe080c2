package transport

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"framepump/internal/logging"
)

// StreamService is the health service name reporting the decode stream.
const StreamService = "framepump.Stream"

// Server is the control plane: gRPC health for the stream plus reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	log    *slog.Logger
}

func StartServer(port int) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis), nil
}

// NewServer serves on lis. Both the overall and the stream status start as
// NOT_SERVING until the stream begins.
func NewServer(lis net.Listener) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
		log:    logging.For("transport"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// SetServing flips the stream status.
func (s *Server) SetServing(on bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if on {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(StreamService, st)
	s.log.Debug("health status", "service", StreamService, "status", st.String())
}

func (s *Server) Serve() error {
	s.log.Info("grpc listening", "addr", s.lis.Addr().String())
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
