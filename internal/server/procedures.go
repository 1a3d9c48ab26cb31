package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
)

type createProcedureRequest struct {
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	UnitCharge  decimal.Decimal `json:"unit_charge"`
	Inactive    bool            `json:"inactive"`
}

func (s *Server) CreateProcedure(c *gin.Context) {
	var req createProcedureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Create(c.Request.Context(), catalogdomain.CreateProcedureRequest{
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.TrimSpace(req.Code),
		Description: strings.TrimSpace(req.Description),
		UnitCharge:  req.UnitCharge,
		Inactive:    req.Inactive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListProcedures is the drawer's catalog search.
func (s *Server) ListProcedures(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active_only"))
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}
	pageSize, err := parseOptionalInt(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	query := billingdomain.CatalogQuery{SearchText: strings.TrimSpace(c.Query("search"))}
	if activeOnly != nil {
		query.ActiveOnly = *activeOnly
	}
	if pageSize != nil {
		query.PageSize = *pageSize
	}

	resp, err := s.catalogSvc.SearchCatalog(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProcedureByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.catalogSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
