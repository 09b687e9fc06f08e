package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxRate is an org-scoped named tax percentage (e.g. GST 5%, PST 7%).
// NOTE:
// - rate is a decimal fraction (0.0500 for 5%), never a display percentage
// - is_active only controls whether the rate is offered for NEW line items;
//   historical invoices keep their own snapshot values regardless of edits
type TaxRate struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`

	Name        string          `gorm:"type:text;not null" json:"name"`
	Rate        decimal.Decimal `gorm:"type:numeric(8,6);not null" json:"rate"`
	Description *string         `gorm:"type:text" json:"description,omitempty"`

	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (t *TaxRate) Validate() error {
	if t.Name == "" {
		return ErrInvalidName
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	return nil
}
