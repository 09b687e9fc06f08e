package server

import (
	"net/http"

	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateTaxRate(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req taxdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, taxdomain.ErrInvalidTaxRate)
		return
	}
	req.OrgID = orgID

	rate, err := s.taxSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rate})
}

func (s *Server) ListTaxRates(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := taxdomain.ListRequest{Name: c.Query("name")}
	if active := c.Query("is_active"); active != "" {
		isActive := active == "true"
		filter.IsActive = &isActive
	}

	rates, err := s.taxSvc.List(c.Request.Context(), orgID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rates})
}

func (s *Server) UpdateTaxRate(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req taxdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, taxdomain.ErrInvalidTaxRate)
		return
	}
	req.OrgID = orgID
	req.ID = c.Param("id")

	rate, err := s.taxSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rate})
}

// DisableTaxRate deactivates a rate instead of deleting it: historical
// invoices hold snapshots that reference it.
func (s *Server) DisableTaxRate(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rate, err := s.taxSvc.Disable(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rate})
}
