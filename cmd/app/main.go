package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"backbencher-auth-gateway/internal/common/config"
	"backbencher-auth-gateway/internal/common/logger"
	"backbencher-auth-gateway/internal/common/middleware"
	authhttp "backbencher-auth-gateway/internal/features/auth/delivery/http"
	authservice "backbencher-auth-gateway/internal/features/auth/service"
	"backbencher-auth-gateway/internal/features/gate"
	profilemodels "backbencher-auth-gateway/internal/features/profile/models"
	profilerepo "backbencher-auth-gateway/internal/features/profile/repository"
	memoryrepo "backbencher-auth-gateway/internal/features/profile/repository/memory"
	redisrepo "backbencher-auth-gateway/internal/features/profile/repository/redis"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	sessionservice "backbencher-auth-gateway/internal/features/session/service"
	"backbencher-auth-gateway/internal/platform/backendapi"
	"backbencher-auth-gateway/internal/platform/identity"
	redisplatform "backbencher-auth-gateway/internal/platform/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init("backbencher-auth-gateway", cfg.Debug)

	// Snapshot storage: Redis when reachable, in-memory otherwise. A cold
	// cache only costs an extra profile fetch, it never blocks startup.
	var snapshots profilerepo.SnapshotStore
	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	redisClient, err := redisplatform.Open(ctx, redisAddr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable, falling back to in-memory snapshot store")
		snapshots = memoryrepo.NewSnapshotStore()
	} else {
		defer redisClient.Close()
		snapshots = redisrepo.NewSnapshotStore(redisClient, cfg.Auth.SnapshotTTL)
		logger.Info().Str("addr", redisAddr).Msg("Snapshot store ready")
	}

	backend := backendapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	provider := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey, cfg.Identity.Timeout)

	profiles := profileservice.NewService(backend, snapshots, cfg.Auth.StaleAfter)
	sessionStore := sessionservice.NewStore()
	sessions := sessionservice.NewService(provider, sessionStore, profiles)
	defer sessions.Close()

	auth := authservice.NewService(sessions, provider, backend, profiles)

	// Restore any persisted session; this delivers the first session event
	// and flips the store out of its resolving state.
	if err := provider.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Identity provider startup failed")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := gate.New(cfg.Auth.LoginPath, cfg.Auth.UnauthorizedPath)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)
	defer limiter.Stop()

	api := router.Group("/api/v1")
	authhttp.NewAuthHandler(auth, sessionStore, profiles, g, limiter).RegisterRoutes(api)

	// Role-gated sections mirroring the dashboard routes the UI shell
	// renders behind the gate.
	dashboard := api.Group("/dashboard")
	dashboard.GET("", middleware.RequireRole(sessionStore, profiles, g, profilemodels.RoleUser), sectionHandler("dashboard"))
	dashboard.GET("/bb", middleware.RequireRole(sessionStore, profiles, g, profilemodels.RoleAdmin), sectionHandler("backbencher-control"))
	dashboard.GET("/learning", middleware.RequireRole(sessionStore, profiles, g, profilemodels.RoleMentor), sectionHandler("mentor-learning"))
	dashboard.GET("/workstation", middleware.RequireRole(sessionStore, profiles, g, profilemodels.RoleStudent), sectionHandler("student-workstation"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	logger.Info().Msg("Server stopped")
}

func sectionHandler(section string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"section": section}})
	}
}
