package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	"github.com/dojohq/dojobill/pkg/money"
	"github.com/gin-gonic/gin"
)

// orgIDFromHeader resolves the tenant. Authentication lives in front of
// this service; by the time a request lands here the org header is
// trusted.
func orgIDFromHeader(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader("X-Org-ID"))
	if raw == "" {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	return id, nil
}

func (s *Server) CreateInvoice(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invoicedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidFamily)
		return
	}
	req.OrgID = orgID

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListInvoices(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.invoiceSvc.List(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ReplaceDraftLineItems(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		LineItems []invoicedomain.LineItemDraft `json:"line_items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invoicedomain.ErrNoLineItems)
		return
	}

	item, err := s.invoiceSvc.UpdateDraft(c.Request.Context(), orgID, c.Param("id"), req.LineItems)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) TransitionInvoiceStatus(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Status invoicedomain.InvoiceStatus `json:"status"`
		Note   string                      `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidStatus)
		return
	}

	if err := s.invoiceSvc.TransitionStatus(c.Request.Context(), orgID, c.Param("id"), req.Status, req.Note); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RecordInvoicePayment(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Amount money.Money `json:"amount"`
		PaidAt *time.Time  `json:"paid_at,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidPayment)
		return
	}

	item, err := s.invoiceSvc.RecordPayment(c.Request.Context(), orgID, c.Param("id"), req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcome, err := s.invoiceSvc.Delete(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) InvoiceStatistics(c *gin.Context) {
	orgID, err := orgIDFromHeader(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.invoiceSvc.Statistics(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
