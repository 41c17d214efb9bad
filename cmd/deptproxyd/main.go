package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/byytelope/deptproxy/internal/admin"
	"github.com/byytelope/deptproxy/internal/config"
	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/proxy"
	"github.com/byytelope/deptproxy/internal/store"
	"github.com/byytelope/deptproxy/internal/telemetry"
	"github.com/byytelope/deptproxy/pkg/tablecache"
)

const serviceName = "deptproxyd"

func main() {
	addr := flag.String("addr", "", "Listen address (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, *addr, logger); err != nil {
		logger.Error("deptproxyd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, addr string, logger *slog.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	cache := tablecache.New(cfg.CacheTTL, proxy.Slots())

	if addr == "" {
		addr = cfg.Addr()
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      h2c.NewHandler(newMux(cfg, backend, cache, logger), &http2.Server{}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}

	go func() {
		logger.Info("deptproxyd listening",
			"addr", ln.Addr().String(),
			"backend", backend.Name(),
			"store_configured", backend.Configured(),
			"cache_ttl", cache.TTL().String(),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve error", "err", err)
		}
	}()

	waitForShutdown(server, cfg.ShutdownTimeout, logger)
	return nil
}

// newMux puts the admin, health and reflection handlers next to the REST
// routes, which take every other path.
func newMux(cfg config.Config, backend store.Backend, cache *tablecache.Cache, logger *slog.Logger) *http.ServeMux {
	checker := grpchealth.NewStaticChecker(admin.ServiceName)
	if !backend.Configured() {
		checker.SetStatus("", grpchealth.StatusNotServing)
		checker.SetStatus(admin.ServiceName, grpchealth.StatusNotServing)
	}
	reflector := grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName)

	mux := http.NewServeMux()
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
	mux.Handle(grpchealth.NewHandler(checker))
	mux.Handle(admin.NewHandler(
		admin.NewService(cache),
		connect.WithInterceptors(admin.UnaryLogging(logger)),
	))

	api := proxy.New(backend, cache, logger).Handler()
	mux.Handle("/", telemetry.Handler(newCORS(cfg.CORSOrigins).Handler(api), serviceName))

	return mux
}

func newCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
		ExposedHeaders: []string{httpx.RequestIDHeader},
	})
}
