package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ava-gateway/internal/config"
	"ava-gateway/internal/gateway"
	"ava-gateway/internal/keys"
	"ava-gateway/internal/ratelimit"
	"ava-gateway/internal/token"
	"ava-gateway/pkg/logger"
	"ava-gateway/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	resolver, err := keys.NewResolver(keys.Options{URL: cfg.Auth.JWKSURL})
	if err != nil {
		log.Error("key resolver init failed", "err", err)
		os.Exit(1)
	}

	verifier, err := token.NewVerifier(resolver, token.VerifierConfig{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		log.Error("verifier init failed", "err", err)
		os.Exit(1)
	}

	table, err := gateway.NewTable(gatewayRules(cfg))
	if err != nil {
		log.Error("route table init failed", "err", err)
		os.Exit(1)
	}

	var limiter ratelimit.Limiter
	if cfg.Redis.Host != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		limiter, err = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		if err != nil {
			log.Error("rate limiter init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no redis configured, rate limiting is per-instance only")
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	gw, err := gateway.New(verifier, table, gateway.Options{
		UpstreamTimeout: cfg.Upstreams.Timeout,
		Recorder:        gateway.NewMemoryRecorder(0),
		DevMode:         cfg.IsDevelopment(),
	})
	if err != nil {
		log.Error("gateway init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(ratelimit.Middleware(limiter, cfg.RateLimit.Max))

	registerRoutes(r, gw)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
