package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nexus-catalog/internal/security"
)

// Routes groups the controllers mounted by Register. A nil Auth leaves the
// API open.
type Routes struct {
	Catalog *CatalogController
	Sources *SourceController
	Health  *HealthController
	Auth    *security.AuthMiddleware
}

func (r Routes) Register(router *gin.Engine) {
	router.GET("/health", r.Health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/health", r.Health.HealthCheck)

	read := api.Group("")
	admin := api.Group("")
	if r.Auth != nil {
		read.Use(r.Auth.RequireAuth(), r.Auth.RequireRole(security.RoleReader))
		admin.Use(r.Auth.RequireAuth(), r.Auth.RequireRole(security.RoleAdmin))
	}
	{
		read.GET("/plugins", r.Catalog.Plugins)
		read.POST("/discover", r.Catalog.Discover)
		read.POST("/verify", r.Catalog.Verify)

		read.GET("/sources", r.Sources.ListSources)
		read.GET("/sources/:name", r.Sources.GetSource)
		read.GET("/sources/:name/tables/:table/records", r.Sources.ReadRecords)
	}
	{
		admin.PUT("/sources/:name", r.Sources.PutSource)
		admin.POST("/sources/:name/refresh", r.Sources.RefreshSource)
		admin.DELETE("/sources/:name", r.Sources.DeleteSource)
	}
}
