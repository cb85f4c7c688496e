package web

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"ridebook/db/db"
	"ridebook/metrics"
	"ridebook/mq/mq"
)

type ServiceConfig struct {
	IsDev     bool
	Port      string
	MqMode    mq.Mode
	RateLimit string
}

// NewRouter builds the engine with every route mounted.
func NewRouter(cfg ServiceConfig, h *Handler, store db.RideDBWrapper) (*gin.Engine, error) {
	if !cfg.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := setupMiddlewares(r, cfg); err != nil {
		return nil, fmt.Errorf("setup middlewares: %w", err)
	}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/")
	api.Use(IdentityMiddleware(h.repairer))
	api.Use(UserDataLoaderInjectionMiddleware(store))
	{
		api.GET("/me", h.me)

		api.POST("/rides", h.createRide)
		api.POST("/rides/estimate", h.estimateDistance)
		api.GET("/rides", h.listRides)
		api.GET("/rides/:id", h.getRide)
		api.GET("/rides/:id/next", h.nextRideMessage)
		api.POST("/rides/:id/accept", h.acceptRide)
		api.POST("/rides/:id/complete", h.completeRide)
	}

	staff := api.Group("/")
	staff.Use(RequireRole(db.RoleStaff))
	{
		staff.POST("/users/:id/balance", h.creditBalance)
		staff.POST("/admin/repair", h.repairBalances)
	}
	return r, nil
}

func Serve(cfg ServiceConfig, h *Handler, store db.RideDBWrapper) error {
	r, err := NewRouter(cfg, h, store)
	if err != nil {
		return err
	}
	return r.Run(":" + cfg.Port)
}
