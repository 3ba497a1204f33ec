package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nexus-catalog/internal/catalog"
)

type HealthResponse struct {
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Service   string             `json:"service"`
	Version   string             `json:"version"`
	Catalog   CatalogStatus      `json:"catalog"`
	Cache     catalog.CacheStats `json:"cache"`
}

type CatalogStatus struct {
	Sources int `json:"sources"`
	// Failing counts sources whose last discovery reported errors.
	Failing int `json:"failing"`
}

type HealthController struct {
	manager *catalog.Manager
	cache   *catalog.ResultCache
	version string
}

func NewHealthController(manager *catalog.Manager, cache *catalog.ResultCache, version string) *HealthController {
	return &HealthController{manager: manager, cache: cache, version: version}
}

// HealthCheck reports "degraded" while any managed source has discovery
// errors; the endpoint itself stays 200 since the service can still answer.
func (hc *HealthController) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "nexus-catalog",
		Version:   hc.version,
	}
	for _, name := range hc.manager.Names() {
		e, ok := hc.manager.Get(name)
		if !ok {
			continue
		}
		resp.Catalog.Sources++
		if r := e.Result(); r != nil && !r.IsSuccessful() {
			resp.Catalog.Failing++
		}
	}
	if resp.Catalog.Failing > 0 {
		resp.Status = "degraded"
	}
	if hc.cache != nil {
		resp.Cache = hc.cache.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
