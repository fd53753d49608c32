package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server hosts the health service of the daemon. Every open index is a
// health service of its own, so probes can wait for a rebuild to finish.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	metrics *grpcprom.ServerMetrics
	logger  *zap.Logger
}

// IndexService is the health service name of one column index.
func IndexService(keyspace, family, column string) string {
	return fmt.Sprintf("bagginsindex.%s.%s.%s", keyspace, family, column)
}

// InterceptorLogger adapts zap to the logging interceptor.
func InterceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, _ := fields[i].(string)
			f = append(f, zap.Any(key, fields[i+1]))
		}
		l := l.WithOptions(zap.AddCallerSkip(1)).With(f...)
		switch lvl {
		case logging.LevelDebug:
			l.Debug(msg)
		case logging.LevelInfo:
			l.Info(msg)
		case logging.LevelWarn:
			l.Warn(msg)
		case logging.LevelError:
			l.Error(msg)
		default:
			l.Error(msg, zap.Int("level", int(lvl)))
		}
	})
}

// New builds the gRPC server and registers its metrics with reg.
func New(l *zap.Logger, reg prometheus.Registerer) (*Server, error) {
	metrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120}),
		),
	)
	if err := reg.Register(metrics); err != nil {
		return nil, err
	}
	panics := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grpc_req_panics_recovered_total",
		Help: "Total number of gRPC requests recovered from internal panic.",
	})
	if err := reg.Register(panics); err != nil {
		return nil, err
	}
	onPanic := func(p any) error {
		panics.Inc()
		l.Error("recovered from panic", zap.Any("panic", p), zap.Stack("stack"))
		return status.Errorf(codes.Internal, "%s", p)
	}

	logOpts := []logging.Option{logging.WithLogOnEvents(logging.FinishCall)}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			logging.UnaryServerInterceptor(InterceptorLogger(l), logOpts...),
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(onPanic)),
		),
		grpc.ChainStreamInterceptor(
			metrics.StreamServerInterceptor(),
			logging.StreamServerInterceptor(InterceptorLogger(l), logOpts...),
			recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(onPanic)),
		),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	// reflection allows grpcurl against the daemon
	reflection.Register(s)
	metrics.InitializeMetrics(s)

	return &Server{grpc: s, health: h, metrics: metrics, logger: l}, nil
}

// SetServing marks service as serving or not. The empty name is the overall
// status of the daemon.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Serve blocks serving lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop flips every service to NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// MetricsServer serves g on /metrics.
func MetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
