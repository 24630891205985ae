package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fileserver/internal/config"
	"fileserver/internal/handler"
	middie "fileserver/internal/middleware"
	"fileserver/internal/signing"
	"fileserver/internal/store"
	"fileserver/internal/token"
)

// App represents the application
type App struct {
	server *echo.Echo
	config *config.Config
	store  *store.Store
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	signer := signing.NewSigner([]byte(cfg.HMACSecret))
	authority := token.NewAuthority(st)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Generous timeouts for large file transfers
	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middie.SecurityHeaders())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", int(cfg.MaxSizeMiB))))

	app := &App{
		server: e,
		config: cfg,
		store:  st,
	}

	registerRoutes(e, handler.NewHandler(cfg, st, signer, authority))
	return app, nil
}

// Start starts the HTTP server.
func (a *App) Start() {
	serverAddr := fmt.Sprintf(":%d", a.config.Port)

	go func() {
		if err := a.server.Start(serverAddr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	log.Printf("Server started on %s", serverAddr)
}

// Shutdown gracefully shuts down the server and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return err
	}
	return a.store.Close()
}

// registerRoutes registers all HTTP routes
func registerRoutes(e *echo.Echo, h *handler.Handler) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/files", h.HandleListFiles)
	api.GET("/files/:id", h.HandleFileMeta)
	api.GET("/files/:id/signed-url", h.HandleSignedURL)
	api.GET("/files/:id/download", h.HandleDownload)
	api.GET("/embed/:id", h.HandleEmbed)

	admin := e.Group("/admin")
	admin.POST("/login", h.HandleAdminLogin)
	admin.POST("/logout", h.HandleAdminLogout)
	admin.POST("/upload", h.HandleUpload)
	admin.GET("/files", h.HandleAdminFileList)
	admin.POST("/files/:id/update", h.HandleAdminFileUpdate)
	admin.POST("/files/:id/delete", h.HandleAdminFileDelete)
	admin.GET("/stream/:id", h.HandleAdminStream)
	admin.GET("/tokens", h.HandleTokenList)
	admin.POST("/tokens", h.HandleTokenCreate)
	admin.POST("/tokens/:id/revoke", h.HandleTokenRevoke)
	admin.POST("/tokens/:id/delete", h.HandleTokenDelete)
}
