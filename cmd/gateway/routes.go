package main

import (
	"ava-gateway/internal/config"
	"ava-gateway/internal/gateway"

	"github.com/gin-gonic/gin"
)

// gatewayRules is the static forwarding table. The auth service mounts its
// API at /api; learning keeps its mount point; the recommendation service
// expects the prefix stripped; /public exposes learning content without a
// login requirement.
func gatewayRules(cfg config.Config) []gateway.Rule {
	return []gateway.Rule{
		{Prefix: "/auth", Target: cfg.Upstreams.AuthServiceURL, Mode: gateway.ModeNone, Rewrite: "/api"},
		{Prefix: "/learning", Target: cfg.Upstreams.LearningServiceURL, Mode: gateway.ModeRequired, Rewrite: "/learning"},
		{Prefix: "/rec", Target: cfg.Upstreams.RecommendationServiceURL, Mode: gateway.ModeRequired, Rewrite: ""},
		{Prefix: "/public", Target: cfg.Upstreams.LearningServiceURL, Mode: gateway.ModeOptional, Rewrite: "/learning"},
	}
}

// registerRoutes wires the gateway's few local endpoints. Everything else is
// the catch-all proxy handler.
func registerRoutes(r *gin.Engine, gw *gateway.Gateway) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "AVA API Gateway",
			"version": "1.0.0",
			"endpoints": gin.H{
				"auth":            "/auth",
				"learning":        "/learning",
				"recommendations": "/rec",
				"public":          "/public",
			},
		})
	})

	r.NoRoute(gw.Handler())
}
