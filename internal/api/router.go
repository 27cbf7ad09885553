package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/account-service/docs"
	"github.com/99minutos/account-service/internal/api/handler"
	"github.com/99minutos/account-service/internal/api/middleware"
	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/ports"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Accounts  ports.AccountService
	Tokens    ports.TokenIssuer
	JWTSecret string
	// Readiness names the dependencies pinged by /health/ready.
	Readiness map[string]handler.Pinger
	Log       zerolog.Logger
	// Registry receives the HTTP metrics. Defaults to the global registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)
	e.Validator = handler.NewValidator()

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:                 "accounts_http",
		Registerer:                registerer,
		DoNotUseRequestPathFor404: true,
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Accounts, deps.Tokens)
	accountHandler := handler.NewAccountHandler(deps.Accounts)
	authMiddleware := middleware.Auth(deps.JWTSecret)
	staff := middleware.RBAC(domain.RoleManager, domain.RoleAdmin)
	anyRole := middleware.RBAC(domain.RoleAuthenticated, domain.RoleManager, domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.GET("/auth/verify-email/:id/:token", authHandler.VerifyEmail)
	e.POST("/auth/resend-verification", authHandler.ResendVerification)

	// --- Account routes ---
	users := e.Group("/users", authMiddleware)
	users.GET("", accountHandler.List, staff)
	users.POST("", accountHandler.Create, staff)
	users.GET("/lookup", accountHandler.Lookup, staff)
	users.GET("/lock-status", accountHandler.LockStatus, staff)
	users.GET("/:id", accountHandler.Get, anyRole)
	users.PUT("/:id", accountHandler.Update, anyRole)
	users.DELETE("/:id", accountHandler.Delete, middleware.RBAC(domain.RoleAdmin))
	users.POST("/:id/unlock", accountHandler.Unlock, staff)
	users.POST("/:id/reset-password", accountHandler.ResetPassword, anyRole)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
