package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelframe/playerhub/internal/api/http/handler"
	"github.com/pixelframe/playerhub/internal/api/http/middleware"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

type Services struct {
	Players        handler.PlayerService
	Commands       handler.CommandService
	CommandLog     handler.CommandLogReader
	Authority      handler.RevocationSource
	Identities     handler.PlayerAuthenticator
	Limiter        *ratelimit.Limiter
	JWTSecret      string
	AdminAPIKey    string
	BrokerHost     string
	BrokerPort     int
	MetricsEnabled bool
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	if srvs.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	playerHandler := handler.NewPlayerHandler(srvs.Players, srvs.BrokerHost, srvs.BrokerPort)
	commandHandler := handler.NewCommandHandler(srvs.Commands, srvs.CommandLog)
	adminHandler := handler.NewAdminHandler(srvs.Authority, srvs.Identities)

	device := engine.Group("/api/player")
	device.POST("/provision", middleware.IPRateLimit(srvs.Limiter, ratelimit.ProvisionPerIP), playerHandler.Provision)
	device.GET("/:player_key/credentials", middleware.IPRateLimit(srvs.Limiter, ratelimit.CredentialsPerIP), playerHandler.Credentials)

	owner := engine.Group("/api/players", middleware.JWTAuth(srvs.JWTSecret))
	owner.POST("/register", playerHandler.Register)
	owner.GET("", playerHandler.List)
	owner.POST("/commands", commandHandler.DispatchAll)
	owner.DELETE("/:id", playerHandler.Delete)
	owner.POST("/:id/renew-cert", playerHandler.RenewCertificate)
	owner.POST("/:id/commands", commandHandler.Dispatch)

	admin := engine.Group("/api/admin", middleware.APIKeyAuth(srvs.AdminAPIKey))
	admin.GET("/players/:id/commands", commandHandler.History)
	admin.GET("/crl", adminHandler.CRL)
	admin.GET("/ca", adminHandler.CACert)
	admin.POST("/verify-cert", adminHandler.VerifyCertificate)
}
