// Command bagginsindex runs the secondary indexes of one table. Rows reach
// the indexes through the in-process row store: the seed file named in the
// config is written at startup, and embedders write through rowstore.Store.
// The gRPC surface is health only, one service per index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	wal "github.com/aarthikrao/wal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/flynnfc/bagginsindex/config"
	"github.com/flynnfc/bagginsindex/internal/truetime"
	"github.com/flynnfc/bagginsindex/logger"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexer"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/rowstore"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/segment"
	"github.com/flynnfc/bagginsindex/server"
	"github.com/flynnfc/bagginsindex/simulation"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	probe := flag.String("probe", "", "check the health of the daemon at this address and exit")
	service := flag.String("service", "", "health service checked by -probe, empty for the daemon itself")
	simulate := flag.Bool("simulate", false, "run the tagged rows load simulation and exit")
	flag.Parse()

	if *simulate {
		simulation.Load()
		return
	}
	if *probe != "" {
		os.Exit(runProbe(*probe, *service))
	}
	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runProbe exits 0 when the service is serving. Used as a container exec probe.
func runProbe(addr, service string) int {
	pool := server.NewConnectionPool(time.Minute, time.Minute)
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	st, err := pool.Probe(ctx, addr, service)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(st)
	if st != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}

// seed writes the rows of a seed file through the subscribed indexes.
func seed(ctx context.Context, store *rowstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	_, err = store.Seed(ctx, f)
	return err
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.InitLogger(logger.Options{Name: cfg.Log.Name, Level: cfg.Log.Level, Console: true})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(tp)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("Failed to shut down tracer provider", zap.Error(err))
			}
		}()
	}

	var clock truetime.Clock = truetime.Local{}
	if cfg.Clock.NTPServer != "" {
		c := truetime.NewNTPClock(cfg.Clock.NTPServer, log.Named("truetime"))
		if err := c.Run(ctx, cfg.Clock.SyncInterval); err != nil {
			return err
		}
		clock = c
	}

	family, err := cfg.Family()
	if err != nil {
		return err
	}
	store := rowstore.New(rowstore.Config{Family: family, Clock: clock, Logger: log.Named("rowstore")})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(indexer.Collectors()...)

	srv, err := server.New(log.Named("grpc"), reg)
	if err != nil {
		return err
	}

	var wals []*wal.WriteAheadLog
	var openLog func(string) (segment.Log, error)
	if cfg.Index.WAL {
		openLog = logger.WALOpener(logger.DefaultWALOptions, log.Named("wal"), func(w *wal.WriteAheadLog) {
			wals = append(wals, w)
		})
	}

	var indexes []*indexer.Indexer
	defer func() {
		for _, ix := range indexes {
			if err := ix.Flush(); err != nil {
				log.Error("Failed to flush index", zap.String("dir", ix.Dir()), zap.Error(err))
			}
			if err := ix.Close(); err != nil {
				log.Error("Failed to close index", zap.String("dir", ix.Dir()), zap.Error(err))
			}
		}
		for _, w := range wals {
			if err := w.Close(); err != nil {
				log.Error("Failed to close WAL", zap.Error(err))
			}
		}
	}()

	services := make([]string, 0, len(cfg.Index.Columns))
	for _, column := range cfg.Index.Columns {
		name := server.IndexService(family.Keyspace, family.Name, column)
		srv.SetServing(name, false)
		services = append(services, name)
		ix, err := indexer.New(indexer.Config{
			Family:         family,
			Column:         column,
			Options:        cfg.IndexOptions(column),
			Shards:         cfg.Index.Shards,
			FlushThreshold: cfg.Index.FlushThreshold,
			Logger:         log.Named("indexer"),
			TracerProvider: otel.GetTracerProvider(),
			OpenLog:        openLog,
		})
		if err != nil {
			return err
		}
		indexes = append(indexes, ix)
		store.Subscribe(ix)
	}
	if cfg.Seed != "" {
		if err := seed(ctx, store, cfg.Seed); err != nil {
			return err
		}
	}
	for _, name := range services {
		srv.SetServing(name, true)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	metrics := server.MetricsServer(cfg.Server.MetricsAddr, reg)

	errc := make(chan error, 2)
	go func() { errc <- srv.Serve(lis) }()
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err = <-errc:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("Stopping gRPC server")
	srv.Stop()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to stop metrics server", zap.Error(err))
	}
	log.Info("Shutdown complete")
	return err
}
