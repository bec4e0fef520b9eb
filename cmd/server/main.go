package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/solvemate/solvemate-api/internal/account"
	"github.com/solvemate/solvemate-api/internal/analyzer"
	"github.com/solvemate/solvemate-api/internal/auth"
	"github.com/solvemate/solvemate-api/internal/config"
	"github.com/solvemate/solvemate-api/internal/devices"
	"github.com/solvemate/solvemate-api/internal/history"
	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/metrics"
	"github.com/solvemate/solvemate-api/internal/session"
	"github.com/solvemate/solvemate-api/internal/storage/pg"
)

func newTokenValidator(cfg *config.Config) (auth.TokenValidator, error) {
	switch cfg.ValidatorType {
	case "firebase":
		return auth.NewFirebaseTokenValidator(context.Background(), cfg.FirebaseCredJSON)
	default:
		return auth.NewTokenValidator(cfg.JWTJWKSURL)
	}
}

// corsMiddleware applies the configured origin allowlist. "*" keeps the
// permissive default for local development.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	allowAll := allowedOrigins == "" || allowedOrigins == "*"
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware tags every request so log lines can be correlated.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	gin.SetMode(cfg.GinMode)

	db, err := pg.InitDatabase(cfg)
	if err != nil {
		appLogger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	validator, err := newTokenValidator(cfg)
	if err != nil {
		appLogger.Error("failed to initialize token validator",
			slog.String("type", cfg.ValidatorType),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(validator)

	// Services.
	store := history.NewPGStore(db.DB, appLogger)
	writer := history.NewWriter(store,
		cfg.HistoryWorkerPoolSize,
		cfg.HistoryBufferSize,
		time.Duration(cfg.HistoryTimeoutSeconds)*time.Second,
		appLogger)
	engine := analyzer.NewEngine(cfg.GeminiAPIKey, cfg.GeminiModel,
		time.Duration(cfg.AnalyzeTimeoutSeconds)*time.Second, appLogger)
	registry := devices.NewRegistry(
		time.Duration(cfg.DeviceReplySeconds)*time.Second,
		time.Duration(cfg.VoiceIdleTimeoutSecs)*time.Second,
		appLogger)
	manager := session.NewManager(registry, engine, writer, cfg.Categories,
		time.Duration(cfg.SessionTTLMinutes)*time.Minute,
		cfg.MaxSessionsPerUser, appLogger)
	accountService := account.NewService(cfg, appLogger)

	// Handlers.
	sessionHandler := session.NewHandler(manager, appLogger)
	deviceHandler := devices.NewHandler(registry, manager, appLogger)
	historyHandler := history.NewHandler(store, appLogger)
	accountHandler := account.NewHandler(accountService, store, appLogger)

	// Idle session reaping.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SessionCleanupSpec, manager.ReapIdle); err != nil {
		appLogger.Error("invalid session cleanup spec",
			slog.String("spec", cfg.SessionCleanupSpec),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	router.Use(requestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")

	api.GET("/categories", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"categories": cfg.Categories})
	})

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", accountHandler.SignUp)
		authGroup.POST("/signin", accountHandler.SignIn)
		authGroup.POST("/otp", accountHandler.SendOTP)
		authGroup.POST("/verify", accountHandler.VerifyOTP)
		authGroup.POST("/recover", accountHandler.Recover)
		authGroup.POST("/refresh", accountHandler.Refresh)
		authGroup.GET("/google/url", accountHandler.GoogleURL)
		authGroup.POST("/google/callback", accountHandler.GoogleCallback)

		protected := authGroup.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.GET("/profile", accountHandler.Profile)
			protected.PUT("/password", accountHandler.UpdatePassword)
			protected.POST("/signout", accountHandler.SignOut)
			protected.DELETE("/account", accountHandler.DeleteAccount)
		}
	}

	// Sessions work for both signed-in and anonymous users; anonymous
	// sessions simply never persist history.
	sessions := api.Group("/sessions")
	sessions.Use(authMiddleware.OptionalAuth())
	{
		sessions.POST("", sessionHandler.Create)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.DELETE("/:id", sessionHandler.Close)
		sessions.GET("/:id/device", deviceHandler.Connect)

		sessions.POST("/:id/image", sessionHandler.UploadImage)
		sessions.DELETE("/:id/image", sessionHandler.ClearImage)
		sessions.PUT("/:id/description", sessionHandler.SetDescription)
		sessions.PUT("/:id/category", sessionHandler.SetCategory)

		sessions.POST("/:id/camera/open", sessionHandler.OpenCamera)
		sessions.POST("/:id/camera/flash", sessionHandler.ToggleFlash)
		sessions.POST("/:id/camera/capture", sessionHandler.CapturePhoto)
		sessions.POST("/:id/camera/close", sessionHandler.CloseCamera)

		sessions.POST("/:id/voice/start", sessionHandler.StartVoice)
		sessions.POST("/:id/voice/stop", sessionHandler.StopVoice)

		sessions.POST("/:id/submit", sessionHandler.Submit)
	}

	historyGroup := api.Group("/history")
	historyGroup.Use(authMiddleware.RequireAuth())
	{
		historyGroup.GET("", historyHandler.List)
		historyGroup.DELETE("", historyHandler.Delete)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("forced shutdown", slog.String("error", err.Error()))
	}

	// Tear down sessions, then flush pending history writes.
	manager.CloseAll()
	writer.Close()

	if err := db.Close(); err != nil {
		appLogger.Error("database close failed", slog.String("error", err.Error()))
	}

	appLogger.Info("server exited")
}
