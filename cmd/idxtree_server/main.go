package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sushant-115/idxtree/api/indexservice"
	"github.com/sushant-115/idxtree/config"
	"github.com/sushant-115/idxtree/core/indexmanager"
	internaltelemetry "github.com/sushant-115/idxtree/internal/telemetry"
	"github.com/sushant-115/idxtree/pkg/logger"
	"github.com/sushant-115/idxtree/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file")
	grpcAddr   = flag.String("grpc_addr", "", "gRPC bind address (overrides the config file)")
	httpAddr   = flag.String("http_addr", "", "HTTP bind address for health and metrics (overrides the config file)")
	logLevel   = flag.String("log_level", "", "Log level (overrides the config file)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("CRITICAL: Can't initialize zap logger: %v", err)
	}
	defer func() { _ = zlogger.Sync() }()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlogger.Fatal("CRITICAL: Failed to initialize telemetry", zap.Error(err))
	}

	n, err := newNode(cfg, zlogger, tel)
	if err != nil {
		zlogger.Fatal("CRITICAL: Failed to initialize index node", zap.Error(err))
	}

	zlogger.Info("Starting idxtree server",
		zap.String("grpcAddr", cfg.GRPCAddr),
		zap.String("httpAddr", cfg.HTTPAddr),
		zap.Int("startupIndexes", len(cfg.Indexes)),
		zap.Float64("rateLimit", cfg.RateLimit.RequestsPerSecond),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.run(ctx); err != nil {
		zlogger.Error("Server stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zlogger.Error("Failed to shut down telemetry", zap.Error(err))
	}
	zlogger.Info("idxtree server shut down gracefully.")
}

// node owns the index manager and the two listeners that serve it.
type node struct {
	cfg     config.Config
	logger  *zap.Logger
	tel     *telemetry.Telemetry
	manager *indexmanager.TreeIndexManager

	grpcServer *grpc.Server
	httpServer *http.Server
}

func newNode(cfg config.Config, zlogger *zap.Logger, tel *telemetry.Telemetry) (*node, error) {
	manager, err := indexmanager.NewTreeIndexManager(zlogger, tel)
	if err != nil {
		return nil, err
	}
	for _, spec := range cfg.Indexes {
		if _, err := manager.CreateIndex(context.Background(), spec.Name, spec.IndexConfig); err != nil {
			return nil, fmt.Errorf("failed to create startup index %q: %w", spec.Name, err)
		}
	}

	grpcMetrics, err := internaltelemetry.NewGrpcServerMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC metrics: %w", err)
	}
	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = int(cfg.RateLimit.RequestsPerSecond) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(indexservice.UnaryInterceptor(zlogger, limiter, grpcMetrics)))
	indexservice.RegisterIndexServiceServer(grpcServer, indexservice.NewServer(manager, zlogger))

	mux := http.NewServeMux()
	addMuxHandler(mux, manager, tel.MetricsHandler)

	return &node{
		cfg:        cfg,
		logger:     zlogger,
		tel:        tel,
		manager:    manager,
		grpcServer: grpcServer,
		httpServer: &http.Server{Addr: cfg.HTTPAddr, Handler: mux},
	}, nil
}

// run serves until ctx is cancelled or a listener fails, then stops both
// servers and drops every index.
func (n *node) run(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", n.cfg.GRPCAddr, err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(2)
	go n.startGRPCServer(&wg, lis, errCh)
	go n.startHTTPServer(&wg, errCh)

	var runErr error
	select {
	case <-ctx.Done():
		n.logger.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
	defer cancel()
	n.grpcServer.GracefulStop()
	if err := n.httpServer.Shutdown(shutdownCtx); err != nil {
		n.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	wg.Wait()

	if err := n.manager.Close(shutdownCtx); err != nil {
		n.logger.Error("Failed to drop indexes", zap.Error(err))
	}
	return runErr
}

func (n *node) startGRPCServer(wg *sync.WaitGroup, lis net.Listener, errCh chan<- error) {
	defer wg.Done()
	n.logger.Info("gRPC server starting", zap.String("address", lis.Addr().String()))
	if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		n.logger.Error("gRPC server failed to serve", zap.Error(err))
		errCh <- err
		return
	}
	n.logger.Info("gRPC server stopped gracefully.")
}

func (n *node) startHTTPServer(wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()
	n.logger.Info("HTTP server (health, metrics) starting", zap.String("address", n.httpServer.Addr))
	if err := n.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		n.logger.Error("HTTP server failed to serve", zap.Error(err))
		errCh <- err
		return
	}
	n.logger.Info("HTTP server stopped gracefully.")
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nServes named B+-tree indexes over gRPC.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
