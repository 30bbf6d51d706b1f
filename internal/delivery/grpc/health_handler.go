package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name clients may ask about besides "".
const ServiceName = "shop.orders"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers grpc.health.v1 checks by pinging the order store.
type HealthHandler struct {
	healthpb.UnimplementedHealthServer
	store   Pinger
	timeout time.Duration
	log     *logrus.Logger
}

func NewHealthHandler(store Pinger, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{store: store, timeout: 2 * time.Second, log: logger}
}

func (h *HealthHandler) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warnf("gRPC Handler: Health check failed: %v", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewServer builds the gRPC server with the health service and reflection.
func NewServer(store Pinger, logger *logrus.Logger) *grpc.Server {
	server := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))
	healthpb.RegisterHealthServer(server, NewHealthHandler(store, logger))
	reflection.Register(server)
	return server
}

func loggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		entry := logger.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       status.Code(err).String(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.Warnf("gRPC request failed: %v", err)
		} else {
			entry.Debug("gRPC request completed")
		}
		return resp, err
	}
}
