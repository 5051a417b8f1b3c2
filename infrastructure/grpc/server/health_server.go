package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name under which the router reports its health.
const ServiceName = "chat.router"

// HealthServer exposes the standard gRPC health protocol.
// It runs as a supervised worker, the serving status is driven by workers.HealthWorker.
type HealthServer struct {
	log    *slog.Logger
	port   int
	health *health.Server
}

func NewHealthServer(log *slog.Logger, port int) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, port: port, health: h}
}

// Status is given to the health worker to update the serving status.
func (s *HealthServer) Status() *health.Server {
	return s.health
}

func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", s.port, err)
	}
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, s.health)

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		server.GracefulStop()
	}()

	s.log.Info("Health endpoint listening", "address", listener.Addr().String())
	if err = server.Serve(listener); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
