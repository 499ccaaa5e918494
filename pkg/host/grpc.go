package host

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// startGRPC serves the standard gRPC health service. The overall status
// ("") is SERVING while the host runs; every exported plugin service is
// reported under its own name.
func (h *Host) startGRPC(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	h.grpcListener = listener

	h.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)
	grpc_health_v1.RegisterHealthServer(h.grpcServer, h.healthServer)
	h.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(h.grpcServer)

	h.logger.WithField("address", listener.Addr().String()).Info("Starting gRPC health server")

	go func() {
		if err := h.grpcServer.Serve(listener); err != nil {
			h.logger.WithError(err).Error("gRPC server failed")
		}
	}()
	return nil
}

// GRPCAddr returns the address of the gRPC health server, once started
func (h *Host) GRPCAddr() string {
	if h.grpcListener == nil {
		return ""
	}
	return h.grpcListener.Addr().String()
}

func (h *Host) stopGRPC() {
	h.healthServer.Shutdown()
	if h.grpcServer != nil {
		h.grpcServer.GracefulStop()
	}
}

func (h *Host) setServingStatus(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.healthServer.SetServingStatus(service, status)
}
