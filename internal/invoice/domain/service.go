package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/pkg/money"
	"github.com/shopspring/decimal"
)

// LineItemDraft is the caller-supplied shape of one invoice line before
// calculation.
type LineItemDraft struct {
	ItemType    ItemType `json:"item_type"`
	Description string   `json:"description"`

	Quantity     int64           `json:"quantity"`
	UnitPrice    money.Money     `json:"unit_price"`
	TaxRateIDs   []snowflake.ID  `json:"tax_rate_ids"`
	DiscountRate decimal.Decimal `json:"discount_rate"` // percentage, 0-100

	EnrollmentID       *snowflake.ID `json:"enrollment_id,omitempty"`
	ProductID          *snowflake.ID `json:"product_id,omitempty"`
	ServicePeriodStart *time.Time    `json:"service_period_start,omitempty"`
	ServicePeriodEnd   *time.Time    `json:"service_period_end,omitempty"`
	SortOrder          int           `json:"sort_order"`
}

type CreateRequest struct {
	OrgID    snowflake.ID `json:"org_id"`
	FamilyID snowflake.ID `json:"family_id"`

	Notes *string    `json:"notes,omitempty"`
	DueAt *time.Time `json:"due_at,omitempty"`

	LineItems []LineItemDraft `json:"line_items"`
}

// DeleteOutcome reports what Delete actually did: draft invoices are hard
// deleted, non-draft unpaid invoices are cancelled instead.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted   DeleteOutcome = "deleted"
	DeleteOutcomeCancelled DeleteOutcome = "cancelled"
)

// Statistics aggregates across all non-cancelled invoices of an org.
type Statistics struct {
	TotalInvoiced    money.Money `json:"total_invoiced"`
	TotalPaid        money.Money `json:"total_paid"`
	TotalOutstanding money.Money `json:"total_outstanding"`
	OverdueCount     int64       `json:"overdue_count"`
	InvoiceCount     int64       `json:"invoice_count"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)
	GetByID(ctx context.Context, orgID snowflake.ID, id string) (*Invoice, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Invoice, error)

	// UpdateDraft replaces a draft invoice's line items wholesale and
	// recomputes all totals. Rejected for non-draft invoices.
	UpdateDraft(ctx context.Context, orgID snowflake.ID, id string, drafts []LineItemDraft) (*Invoice, error)

	// TransitionStatus moves the invoice through its lifecycle without
	// recomputing financial totals. The note, when present, is recorded
	// for audit history.
	TransitionStatus(ctx context.Context, orgID snowflake.ID, id string, next InvoiceStatus, note string) error

	// Delete hard-deletes an unpaid draft, cancels a non-draft unpaid
	// invoice, and refuses to touch an invoice with recorded payments.
	Delete(ctx context.Context, orgID snowflake.ID, id string) (DeleteOutcome, error)

	// RecordPayment adds to amount_paid and marks the invoice paid when
	// the balance reaches zero.
	RecordPayment(ctx context.Context, orgID snowflake.ID, id string, amount money.Money) (*Invoice, error)

	Statistics(ctx context.Context, orgID snowflake.ID) (Statistics, error)
}
