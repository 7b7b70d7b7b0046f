package main

import (
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// startGRPC serves the standard gRPC health service for the booking engine.
func startGRPC(port string, logger *slog.Logger) (*grpc.Server, *health.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, nil, err
	}
	srv := grpcx.NewServer(logger)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return srv, hs, nil
}
