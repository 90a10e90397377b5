package api

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"grillbook/internal/config"
	"grillbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeChecker struct {
	connected atomic.Bool
}

func (f *fakeChecker) Status(context.Context) models.ConnectionStatus {
	return models.ConnectionStatus{Connected: f.connected.Load()}
}

func startHealthServer(t *testing.T, cfg config.APIGRPCConfig, checker StatusChecker) (*GRPCServer, healthpb.HealthClient, <-chan error) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := newGRPCServer(cfg, checker, lis, nil)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.server.Stop()
	})
	return srv, healthpb.NewHealthClient(conn), serveErr
}

func servingStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCHealth_FollowsStoreStatus(t *testing.T) {
	checker := &fakeChecker{}
	srv, client, _ := startHealthServer(t, config.APIGRPCConfig{}, checker)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, client, ""))

	checker.connected.Store(true)
	srv.probe(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, client, ReservationsService))

	checker.connected.Store(false)
	srv.probe(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, client, ReservationsService))

	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCHealth_WatchProbesOnInterval(t *testing.T) {
	checker := &fakeChecker{}
	srv, client, _ := startHealthServer(t, config.APIGRPCConfig{ProbeInterval: 10 * time.Millisecond}, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Watch(ctx)

	checker.connected.Store(true)
	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	checker.connected.Store(false)
	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
}

func TestGRPCHealth_ShutdownStopsServing(t *testing.T) {
	checker := &fakeChecker{}
	checker.connected.Store(true)
	srv, client, serveErr := startHealthServer(t, config.APIGRPCConfig{}, checker)
	srv.probe(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, client, ""))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	srv.probe(context.Background())
	resp, err = srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus(), "probes after shutdown are ignored")
}
