package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janisto/spa-server/internal/common"
	"github.com/janisto/spa-server/internal/config"
	appmiddleware "github.com/janisto/spa-server/internal/middleware"
	"github.com/janisto/spa-server/internal/respond"
	"github.com/janisto/spa-server/internal/routes"
	"github.com/janisto/spa-server/internal/static"
)

const (
	appName  = "spa-server"
	docsPath = "/api/docs"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func newRouter(cfg *config.Config) *chi.Mux {
	respond.Install()

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For; deploy behind a proxy that sets it.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(cfg.Server.MaxBodyBytes),
		appmiddleware.RequestLogger(),
		appmiddleware.AccessLogger(),
		respond.Recoverer(),
		// Probes stop here, after they are tagged and logged.
		appmiddleware.Health(),
		chimiddleware.Compress(5),
	)

	humaCfg := huma.DefaultConfig("SPA Server API", Version)
	humaCfg.OpenAPIPath = "/api/openapi"
	humaCfg.DocsPath = docsPath
	humaCfg.SchemasPath = "/api/schemas"
	api := humachi.New(router, humaCfg)
	routes.Register(api, routes.Info{Name: appName, Version: Version, Build: cfg.Build})

	// Unknown API paths must not fall through to the index document.
	router.Handle("/api/*", respond.NotFoundHandler())
	router.Handle("/*", static.Handler(
		cfg.Static.Dir,
		cfg.Static.Index,
		static.WithSPAFallback(cfg.Static.SPAFallback),
		static.WithCacheMaxAge(cfg.Static.CacheMaxAge),
	))
	return router
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    64 << 10,
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path of the YAML configuration file")
	flag.Parse()

	defer func() {
		if err := common.Sync(); err != nil {
			appmiddleware.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := common.Err(); err != nil {
		appmiddleware.LogError(context.Background(), "logger init error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appmiddleware.LogFatal(context.Background(), "configuration error", err, zap.String("config", *configPath))
	}
	if info, statErr := os.Stat(cfg.Static.Dir); statErr != nil || !info.IsDir() {
		appmiddleware.LogWarn(context.Background(), "static dir not readable, only the API and probes will respond",
			zap.String("dir", cfg.Static.Dir))
	}

	srv := newServer(cfg, newRouter(cfg))

	listenErr := make(chan error, 1)
	go func() {
		appmiddleware.LogInfo(context.Background(), "server listening",
			zap.String("addr", srv.Addr),
			zap.String("static", cfg.Static.Dir),
			zap.String("version", Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		appmiddleware.LogError(context.Background(), "listen failed", err, zap.String("addr", srv.Addr))
		os.Exit(1)
	case <-stop:
		appmiddleware.LogInfo(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appmiddleware.LogError(ctx, "server shutdown error", err)
	}
	appmiddleware.LogInfo(context.Background(), "server exited")
}
