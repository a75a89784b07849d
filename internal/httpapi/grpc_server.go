package httpapi

import (
	"context"

	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"authgrid.org/internal/obs"
)

// GRPCServer exposes the standard gRPC health service backed by the same
// readiness probe the HTTP surface uses.
type GRPCServer struct {
	grpchealth.UnimplementedHealthServer

	readiness ReadyProbe
}

// NewGRPCServer creates the gRPC health service wrapper.
func NewGRPCServer(rp ReadyProbe) *GRPCServer {
	return &GRPCServer{readiness: rp}
}

// Check evaluates readiness for the health protocol.
func (s *GRPCServer) Check(ctx context.Context, _ *grpchealth.HealthCheckRequest) (*grpchealth.HealthCheckResponse, error) {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return &grpchealth.HealthCheckResponse{
			Status: grpchealth.HealthCheckResponse_NOT_SERVING,
		}, nil
	}
	obs.SetReady(true)
	return &grpchealth.HealthCheckResponse{
		Status: grpchealth.HealthCheckResponse_SERVING,
	}, nil
}

// Watch is not supported; clients should poll Check.
func (s *GRPCServer) Watch(_ *grpchealth.HealthCheckRequest, _ grpchealth.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported")
}
