package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"grillbook/internal/config"
	"grillbook/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ReservationsService is the health service name reported next to the server-wide "" entry.
const ReservationsService = "grillbook.Reservations"

const (
	defaultProbeInterval = 15 * time.Second
	probeTimeout         = 3 * time.Second
)

// StatusChecker reports store connectivity.
type StatusChecker interface {
	Status(ctx context.Context) models.ConnectionStatus
}

// GRPCServer serves the standard gRPC health protocol, driven by store connectivity.
type GRPCServer struct {
	cfg      config.APIGRPCConfig
	checker  StatusChecker
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg config.APIGRPCConfig, checker StatusChecker, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return newGRPCServer(cfg, checker, lis, logger), nil
}

func newGRPCServer(cfg config.APIGRPCConfig, checker StatusChecker, lis net.Listener, logger *zerolog.Logger) *GRPCServer {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingUnaryInterceptor(base)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	if cfg.Reflection {
		reflection.Register(grpcServer)
	}

	// NOT_SERVING until the first probe succeeds.
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ReservationsService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCServer{
		cfg:      cfg,
		checker:  checker,
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		log:      base,
	}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC health listening")
	return s.server.Serve(s.listener)
}

// Watch probes the store immediately and then every ProbeInterval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context) {
	interval := s.cfg.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *GRPCServer) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	serving := healthpb.HealthCheckResponse_SERVING
	if st := s.checker.Status(probeCtx); !st.Connected {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn().Str("message", st.Message).Msg("Health probe failed")
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ReservationsService, serving)
}

// Shutdown flips every service to NOT_SERVING and drains open calls.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}

func loggingUnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}
		remote := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		logger.Debug().
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}
