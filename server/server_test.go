package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (*Server, string, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(zap.NewNop(), reg)
	require.NoError(t, err)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return s, lis.Addr().String(), reg
}

func TestProbe(t *testing.T) {
	s, addr, _ := startServer(t)
	svc := IndexService("ks", "users", "state")
	assert.Equal(t, "bagginsindex.ks.users.state", svc)
	s.SetServing(svc, false)

	pool := NewConnectionPool(time.Minute, time.Minute)
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := pool.Probe(ctx, addr, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	st, err = pool.Probe(ctx, addr, svc)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	s.SetServing(svc, true)
	st, err = pool.Probe(ctx, addr, svc)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	_, err = pool.Probe(ctx, addr, "unknown")
	assert.Error(t, err)
	assert.Equal(t, 1, pool.Len())
}

func TestMetricsHandler(t *testing.T) {
	_, addr, reg := startServer(t)
	pool := NewConnectionPool(time.Minute, time.Minute)
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := pool.Probe(ctx, addr, "")
	require.NoError(t, err)

	srv := MetricsServer("", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `grpc_server_handled_total{grpc_code="OK",grpc_method="Check",grpc_service="grpc.health.v1.Health",grpc_type="unary"} 1`), body)
}

func TestIdleEviction(t *testing.T) {
	_, addr, _ := startServer(t)
	pool := NewConnectionPool(10*time.Millisecond, 5*time.Millisecond)
	defer pool.Close()
	_, err := pool.GetConn(addr)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return pool.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
