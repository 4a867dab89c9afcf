// Package rpc provides the gRPC health endpoint for load balancers and probes.
package rpc

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/agentattest/attest-core/internal/log"
)

// AnchorService is the health service name that follows ledger reachability.
const AnchorService = "agentattest.v1.Anchor"

// Server is a gRPC server exposing the standard health service and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer creates a Server. Both the overall and the anchor status start as SERVING.
func NewServer(logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: log.OrNop(logger),
	}

	// Register reflection for grpcurl/debugging
	reflection.Register(s.grpc)

	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(AnchorService, grpc_health_v1.HealthCheckResponse_SERVING)

	return s
}

// SetLedgerReachable updates the anchor service status. It is meant to be
// installed as the anchor client's reachability listener.
func (s *Server) SetLedgerReachable(reachable bool) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !reachable {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(AnchorService, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("address", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
