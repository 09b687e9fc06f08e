package server

import (
	"errors"
	"net/http"

	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/dojohq/dojobill/pkg/money"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts domain errors attached to the context
// into a structured JSON error response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

var validationErrors = []error{
	invoicedomain.ErrInvalidOrganization,
	invoicedomain.ErrInvalidFamily,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrNoLineItems,
	invoicedomain.ErrInvalidQuantity,
	invoicedomain.ErrInvalidUnitPrice,
	invoicedomain.ErrInvalidDiscount,
	invoicedomain.ErrInvalidItemType,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidPayment,
	invoicedomain.ErrCurrencyMismatch,
	taxdomain.ErrInvalidOrganization,
	taxdomain.ErrInvalidName,
	taxdomain.ErrInvalidID,
	taxdomain.ErrInvalidTaxRate,
	taxdomain.ErrUnknownTaxRate,
	money.ErrCurrencyMismatch,
	money.ErrInvalidCurrency,
	money.ErrInvalidAmount,
}

// State errors are distinct from validation: the request was well formed
// but the operation is not permitted in the invoice's current state.
var stateErrors = []error{
	invoicedomain.ErrInvoiceNotDraft,
	invoicedomain.ErrInvoiceHasPayments,
	invoicedomain.ErrInvalidTransition,
}

func mapError(err error) (int, errorPayload) {
	switch {
	case matchesAny(err, validationErrors):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case matchesAny(err, stateErrors):
		return http.StatusConflict, errorPayload{
			Type:    "state_error",
			Message: err.Error(),
		}
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, taxdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func matchesAny(err error, candidates []error) bool {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
