// Package domain contains persistence models and contracts for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. Transitions
// progressively restrict mutability: only DRAFT invoices may have their
// line items rewritten.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusViewed    InvoiceStatus = "VIEWED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:  {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:   {InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusViewed: {InvoiceStatusPaid, InvoiceStatusCancelled},
}

// CanTransitionTo reports whether a status change is permitted.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// ItemType is the closed set of billable line item kinds. Free-form type
// strings are rejected at the boundary.
type ItemType string

const (
	ItemTypeEnrollment ItemType = "ENROLLMENT"
	ItemTypeEvent      ItemType = "EVENT"
	ItemTypeProduct    ItemType = "PRODUCT"
	ItemTypeService    ItemType = "SERVICE"
	ItemTypeFee        ItemType = "FEE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeEnrollment, ItemTypeEvent, ItemTypeProduct, ItemTypeService, ItemTypeFee:
		return true
	}
	return false
}

// Invoice owns an ordered collection of line items. Monetary columns are
// minor-unit integers in the invoice currency.
type Invoice struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID    snowflake.ID `gorm:"column:org_id;not null;index;uniqueIndex:ux_invoice_number_org" json:"org_id"`
	FamilyID snowflake.ID `gorm:"column:family_id;not null;index" json:"family_id"`

	InvoiceNumber *int64        `gorm:"uniqueIndex:ux_invoice_number_org" json:"invoice_number,omitempty"`
	Status        InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	Currency      string        `gorm:"type:text;not null" json:"currency"`

	SubtotalAmount int64 `gorm:"not null;default:0" json:"subtotal_amount"`
	TaxAmount      int64 `gorm:"not null;default:0" json:"tax_amount"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount    int64 `gorm:"not null;default:0" json:"total_amount"`
	AmountPaid     int64 `gorm:"not null;default:0" json:"amount_paid"`

	Notes *string `gorm:"type:text" json:"notes,omitempty"`

	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID" json:"line_items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// OutstandingAmount is total minus paid, in minor units.
func (i Invoice) OutstandingAmount() int64 {
	return i.TotalAmount - i.AmountPaid
}

// InvoiceLineItem is one billable row on an invoice: the caller-supplied
// draft fields plus the calculated amounts, final at insert time.
type InvoiceLineItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`

	ItemType    ItemType `gorm:"type:text;not null" json:"item_type"`
	Description string   `gorm:"type:text;not null" json:"description"`

	Quantity     int64           `gorm:"not null" json:"quantity"`
	UnitPrice    int64           `gorm:"not null" json:"unit_price"`
	DiscountRate decimal.Decimal `gorm:"type:numeric(8,4);not null;default:0" json:"discount_rate"`

	LineTotal      int64 `gorm:"not null" json:"line_total"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discount_amount"`
	TaxAmount      int64 `gorm:"not null;default:0" json:"tax_amount"`
	FinalAmount    int64 `gorm:"not null" json:"final_amount"`

	EnrollmentID       *snowflake.ID `gorm:"index" json:"enrollment_id,omitempty"`
	ProductID          *snowflake.ID `gorm:"index" json:"product_id,omitempty"`
	ServicePeriodStart *time.Time    `json:"service_period_start,omitempty"`
	ServicePeriodEnd   *time.Time    `json:"service_period_end,omitempty"`
	SortOrder          int           `gorm:"not null;default:0" json:"sort_order"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Taxes []InvoiceLineItemTax `gorm:"foreignKey:InvoiceLineItemID" json:"taxes,omitempty"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// InvoiceLineItemTax is an immutable snapshot of one tax rate applied to a
// line item: name, rate and description as of invoicing. Later edits to the
// referenced TaxRate never touch these rows, which is what keeps historical
// invoices stable.
type InvoiceLineItemTax struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	InvoiceLineItemID snowflake.ID `gorm:"not null;index" json:"invoice_line_item_id"`
	TaxRateID         snowflake.ID `gorm:"not null;index" json:"tax_rate_id"`

	TaxName        string          `gorm:"type:text;not null" json:"tax_name"`
	TaxRate        decimal.Decimal `gorm:"type:numeric(8,6);not null" json:"tax_rate"`
	TaxDescription *string         `gorm:"type:text" json:"tax_description,omitempty"`

	Amount int64 `gorm:"not null" json:"amount"` // this rate's contribution, minor units

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (InvoiceLineItemTax) TableName() string { return "invoice_line_item_taxes" }

// InvoiceStatusChange records a status transition with an optional note for
// audit history.
type InvoiceStatusChange struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID  `gorm:"column:org_id;not null;index" json:"org_id"`
	InvoiceID snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	From      InvoiceStatus `gorm:"column:from_status;type:text;not null" json:"from"`
	To        InvoiceStatus `gorm:"column:to_status;type:text;not null" json:"to"`
	Note      *string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (InvoiceStatusChange) TableName() string { return "invoice_status_changes" }
