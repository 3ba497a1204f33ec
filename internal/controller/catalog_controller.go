package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"nexus-catalog/internal/service"
	"nexus-catalog/internal/utils"
	"nexus-catalog/pkg/response"
)

// DiscoverQuery are the query parameters of POST /discover.
type DiscoverQuery struct {
	Samples int `form:"samples" validate:"omitempty,min=0,max=1000"`
}

// VerifyQuery are the query parameters of POST /verify.
type VerifyQuery struct {
	Deep bool `form:"deep"`
}

// CatalogController serves the stateless endpoints: plugin listing,
// one-shot discovery and verification of a posted descriptor.
type CatalogController struct {
	service   service.CatalogService
	validator *validator.Validate
}

func NewCatalogController(svc service.CatalogService) *CatalogController {
	return &CatalogController{service: svc, validator: validator.New()}
}

// Plugins godoc
// @Summary List registered storage, format and mapping kinds
// @Tags catalog
// @Produce json
// @Router /api/v1/plugins [get]
func (cc *CatalogController) Plugins(c *gin.Context) {
	response.OK(c, http.StatusOK, cc.service.Plugins())
}

// Discover godoc
// @Summary Discover the tables of a posted source descriptor
// @Tags catalog
// @Accept json,yaml
// @Produce json
// @Param samples query int false "sample records per table"
// @Router /api/v1/discover [post]
func (cc *CatalogController) Discover(c *gin.Context) {
	var q DiscoverQuery
	if !bindQuery(c, cc.validator, &q) {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	result, err := cc.service.Discover(c.Request.Context(), body, q.Samples)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, result)
}

// Verify godoc
// @Summary Verify a posted source descriptor
// @Description Static checks only, unless deep=true also runs discovery.
// @Tags catalog
// @Accept json,yaml
// @Produce json
// @Router /api/v1/verify [post]
func (cc *CatalogController) Verify(c *gin.Context) {
	var q VerifyQuery
	if !bindQuery(c, cc.validator, &q) {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	report, err := cc.service.Verify(c.Request.Context(), body, q.Deep)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, report)
}

func bindQuery(c *gin.Context, v *validator.Validate, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		response.Fail(c, utils.NewValidationError("Invalid query parameters", err.Error()))
		return false
	}
	if err := v.Struct(dst); err != nil {
		response.Fail(c, utils.NewValidationError("Invalid query parameters", err.Error()))
		return false
	}
	return true
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		response.Fail(c, utils.NewErrorBuilder(utils.ErrCodeInvalidRequest).
			WithMessage("Failed to read request body").
			WithCause(err).
			Build())
		return nil, false
	}
	return body, true
}
