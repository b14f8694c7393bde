package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/handler"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/identity"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/middleware"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/mtic"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/store"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/config"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/database"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/jwtutil"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting pcc cloud service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Wire the engine: store -> identity provider -> claims resolver ->
	// chip registry -> session engine -> handlers
	db := database.GetDB()
	st := store.New(db)
	provider := identity.NewJWTProvider(st, log)
	resolver := claims.NewResolver(st)
	registry := mtic.NewRegistry(st, log)
	sessions := mtic.NewSessions(st, registry, log)
	h := handler.New(db, provider, resolver, registry, sessions)
	gate := middleware.NewAuthGate(provider, resolver, log)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", prometheus.MetricsHandler())

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	auth := e.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.RefreshToken, gate.Verified)

	// Onboarding - a verified user without tenant claims yet may still
	// create their first tenant
	onboarding := e.Group("/api/onboarding")
	onboarding.Use(gate.Verified)
	onboarding.POST("/tenants", h.CreateTenant)

	// API routes - all require resolved tenant claims
	api := e.Group("/api")
	api.Use(gate.Middleware)

	// Tenant management
	tenants := api.Group("/tenants")
	tenants.GET("", h.ListUserTenants)
	tenants.PATCH("/current", h.UpdateTenant)
	tenants.POST("/switch", h.SwitchTenant)
	tenants.POST("/users", h.AddTenantUser)

	// Organization tree and memberships
	orgs := api.Group("/tenant-orgs")
	orgs.POST("", h.CreateTenantOrg)
	orgs.GET("", h.ListTenantOrgs)
	orgs.POST("/users", h.AddTenantOrgUser)
	orgs.POST("/documents", h.GrantOrgDocument)

	// Document pipeline
	documents := api.Group("/documents")
	documents.POST("/configs", h.CreateDocumentConfig)
	documents.POST("/templates", h.CreateDocumentTemplate)
	documents.POST("", h.CreateDocument)
	documents.GET("/:id", h.GetDocument)

	// Chip capture workflows
	mtics := api.Group("/mtics")
	mtics.POST("/sessions", h.StartMTICSession)
	mtics.PATCH("/sessions/:id/end", h.EndMTICSession)
	mtics.POST("", h.RegisterMTIC)
	mtics.POST("/documents", h.LinkMTICDocuments)
	mtics.GET("/:id", h.GetMTICSummary)
	mtics.GET("/:id/details", h.GetMTICDetails)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
