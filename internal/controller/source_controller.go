package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"nexus-catalog/internal/service"
	"nexus-catalog/pkg/response"
)

// RecordsQuery are the query parameters of the records endpoint.
type RecordsQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=10000"`
}

// SourceController manages the sources held by the catalog.
type SourceController struct {
	service   service.CatalogService
	validator *validator.Validate
}

func NewSourceController(svc service.CatalogService) *SourceController {
	return &SourceController{service: svc, validator: validator.New()}
}

// ListSources godoc
// @Summary List managed sources
// @Tags sources
// @Router /api/v1/sources [get]
func (sc *SourceController) ListSources(c *gin.Context) {
	response.OK(c, http.StatusOK, sc.service.ListSources(c.Request.Context()))
}

// PutSource godoc
// @Summary Add or replace a managed source
// @Tags sources
// @Accept json,yaml
// @Router /api/v1/sources/{name} [put]
func (sc *SourceController) PutSource(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	result, err := sc.service.PutSource(c.Request.Context(), c.Param("name"), body)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, result)
}

// GetSource godoc
// @Summary Latest discovery result of a managed source
// @Tags sources
// @Router /api/v1/sources/{name} [get]
func (sc *SourceController) GetSource(c *gin.Context) {
	detail, err := sc.service.GetSource(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, detail)
}

// RefreshSource godoc
// @Summary Rebuild and rediscover a managed source
// @Tags sources
// @Router /api/v1/sources/{name}/refresh [post]
func (sc *SourceController) RefreshSource(c *gin.Context) {
	result, err := sc.service.RefreshSource(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, result)
}

// DeleteSource godoc
// @Summary Close and remove a managed source
// @Tags sources
// @Router /api/v1/sources/{name} [delete]
func (sc *SourceController) DeleteSource(c *gin.Context) {
	if err := sc.service.DeleteSource(c.Request.Context(), c.Param("name")); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessMessageResponse("Source removed", response.CorrelationID(c)))
}

// ReadRecords godoc
// @Summary Read records of a discovered table
// @Tags sources
// @Param limit query int false "maximum records"
// @Router /api/v1/sources/{name}/tables/{table}/records [get]
func (sc *SourceController) ReadRecords(c *gin.Context) {
	var q RecordsQuery
	if !bindQuery(c, sc.validator, &q) {
		return
	}
	out, err := sc.service.ReadRecords(c.Request.Context(), c.Param("name"), c.Param("table"), q.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, out)
}
