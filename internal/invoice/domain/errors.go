package domain

import "errors"

// Validation errors: rejected before any calculation runs.
var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidFamily       = errors.New("invalid_family")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrNoLineItems         = errors.New("no_line_items")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidDiscount     = errors.New("invalid_discount")
	ErrInvalidItemType     = errors.New("invalid_item_type")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidPayment      = errors.New("invalid_payment")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
)

// State errors: the operation is not permitted in the invoice's current
// lifecycle state. Distinct from validation errors.
var (
	ErrInvoiceNotDraft    = errors.New("invoice_not_draft")
	ErrInvoiceHasPayments = errors.New("invoice_has_payments")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")
