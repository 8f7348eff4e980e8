package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/infra/config"
	redisinfra "github.com/arklim/identity-token-service/internal/infra/redis"
	"github.com/arklim/identity-token-service/internal/infra/telemetry"
	"github.com/arklim/identity-token-service/internal/transport/http/handlers"
	"github.com/arklim/identity-token-service/internal/transport/http/middleware"
	"github.com/arklim/identity-token-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Accounts  *usecase.AccountService
	TwoFactor *usecase.TwoFactorService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Services ServiceSet
	Database *pgxpool.Pool
	Cache    *redisinfra.Client
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	healthHandler := handlers.NewHealthHandler(deps.Database, deps.Cache)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			deps.Metrics.Registry(),
			promhttp.HandlerOpts{},
		)))
	}

	api := r.Group("/api/v1")
	{
		tokenHandler := handlers.NewTokenHandler(deps.Services.Auth, deps.Metrics, deps.Logger)
		api.POST("/auth/token", tokenHandler.Token)

		accountHandler := handlers.NewAccountHandler(deps.Services.Accounts, deps.Logger)
		accountGroup := api.Group("/account")
		accountGroup.POST("/register", accountHandler.Register)
		accountGroup.POST("/register/external", accountHandler.RegisterExternal)
		accountGroup.POST("/password/forgot", accountHandler.ForgotPassword)
		accountGroup.POST("/password/reset", accountHandler.ResetPassword)

		manageHandler := handlers.NewManageHandler(deps.Services.TwoFactor, deps.Logger)
		manageGroup := api.Group("/manage")
		manageGroup.Use(middleware.RequireAuth(deps.Services.Auth))
		manageGroup.POST("/two-factor/setup", manageHandler.TwoFactorSetup)
		manageGroup.POST("/two-factor/enable", manageHandler.TwoFactorEnable)
		manageGroup.POST("/two-factor/disable", manageHandler.TwoFactorDisable)
	}

	return r
}
