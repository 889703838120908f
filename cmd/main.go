// Package main is the entry point for the pin review service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/cache"
	"github.com/pinreview/backend/internal/config"
	"github.com/pinreview/backend/internal/database"
	"github.com/pinreview/backend/internal/docstore"
	"github.com/pinreview/backend/internal/gateway"
	"github.com/pinreview/backend/internal/handler"
	"github.com/pinreview/backend/internal/session"
	"github.com/pinreview/backend/internal/syncer"
	"github.com/pinreview/backend/internal/taskmirror"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	// writeDrainTimeout bounds how long queued writes may take at shutdown
	writeDrainTimeout = 10 * time.Second
	stopTimeout       = 30 * time.Second
)

func main() {
	// Parse command line flags
	role := flag.String("role", "", "Service role: gateway or handler (overrides SERVICE_ROLE env var)")
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Override environment variables if flags are provided
	if *role != "" {
		os.Setenv("SERVICE_ROLE", *role)
	}
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}

	cfg := config.New()

	roleModule := fx.Options(
		fx.Provide(newGateway),
		fx.Invoke(registerGateway),
	)
	if cfg.IsHandler() {
		roleModule = fx.Options(
			fx.Provide(
				newStore,
				newMirror,
				newCoordinator,
				newSessionManager,
				newRateLimiter,
				handler.NewHandler,
			),
			fx.Invoke(registerHandler),
		)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newGinEngine,
			newHTTPServer,
		),
		roleModule,
		fx.Invoke(startServer),
		fx.StopTimeout(stopTimeout),
	)

	app.Run()
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// CORS middleware
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	return engine
}

// newHTTPServer creates the HTTP server for the engine. Roles register
// shutdown callbacks on it for long-lived connections.
func newHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}
}

// newStore builds the document store selected by STORE_DRIVER.
func newStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (syncer.Store, error) {
	if !cfg.UsesPostgres() {
		logger.Info("Using in-memory document store")
		return docstore.NewMemory(), nil
	}

	repo, err := database.NewPostgresRepository(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	cacheClient, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			repo.Close()
			return cacheClient.Close()
		},
	})
	return docstore.NewPostgres(repo, cacheClient, logger), nil
}

func newMirror(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*taskmirror.Mirror, error) {
	mirror, err := taskmirror.Open(cfg.TaskDBPath, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mirror.Close()
		},
	})
	return mirror, nil
}

func newCoordinator(store syncer.Store, mirror *taskmirror.Mirror, logger *zap.Logger) *syncer.Coordinator {
	return syncer.NewCoordinator(store, mirror, logger)
}

func newSessionManager(coord *syncer.Coordinator, logger *zap.Logger) *session.Manager {
	return session.NewManager(coord, logger)
}

func newRateLimiter(cfg *config.Config) *handler.RateLimiter {
	return handler.NewRateLimiter(cfg.WriteRatePerSec, cfg.WriteBurst)
}

func newGateway(cfg *config.Config, logger *zap.Logger) (*gateway.Gateway, error) {
	return gateway.NewGateway(cfg, logger)
}

// registerHandler mounts the engine routes and ties the coordinator, the
// sessions and the rate limiter to the app lifecycle.
func registerHandler(
	lc fx.Lifecycle,
	engine *gin.Engine,
	h *handler.Handler,
	coord *syncer.Coordinator,
	sessions *session.Manager,
	limiter *handler.RateLimiter,
	server *http.Server,
	logger *zap.Logger,
) {
	h.RegisterRoutes(engine.Group("/api/v1"))
	server.RegisterOnShutdown(h.StopStreams)
	logger.Info("Handler routes registered")

	reaperDone := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						sessions.Reap(sessionIdleTimeout)
					case <-reaperDone:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(reaperDone)
			limiter.Stop()
			sessions.CloseAll()
			h.Close()
			// the server hook may have used up ctx; queued writes get their own budget
			drainCtx, cancel := context.WithTimeout(context.Background(), writeDrainTimeout)
			defer cancel()
			if err := coord.Shutdown(drainCtx); err != nil {
				logger.Warn("Pending writes abandoned at shutdown", zap.Error(err))
			}
			return nil
		},
	})
}

func registerGateway(engine *gin.Engine, gw *gateway.Gateway, server *http.Server, cfg *config.Config, logger *zap.Logger) {
	gw.RegisterRoutes(engine.Group("/api/v1"))
	server.RegisterOnShutdown(gw.StopStreams)
	logger.Info("Gateway routes registered",
		zap.String("handler_url", cfg.HandlerURL),
	)
}

// startServer starts the HTTP server for the configured role.
func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, engine *gin.Engine, server *http.Server) {
	logger.Info("Starting service",
		zap.String("role", cfg.Role),
		zap.String("port", cfg.ServerPort),
	)

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"role":    cfg.Role,
			"service": "pinreview",
		})
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")
			return server.Shutdown(ctx)
		},
	})
}
