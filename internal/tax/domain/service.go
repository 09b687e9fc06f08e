package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Registry exposes the set of currently active tax rates. The invoice
// service fetches this once per create/update operation so every line item
// in the operation sees the same snapshot.
type Registry interface {
	GetActiveTaxRates(ctx context.Context, orgID snowflake.ID) ([]TaxRate, error)
}

// Service is the administrator-facing tax-rate management surface.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*TaxRate, error)
	List(ctx context.Context, orgID snowflake.ID, req ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, req UpdateRequest) (*TaxRate, error)
	Disable(ctx context.Context, orgID snowflake.ID, id string) (*TaxRate, error)
}

type ListRequest struct {
	Name     string
	IsActive *bool
}

type CreateRequest struct {
	OrgID       snowflake.ID    `json:"org_id"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description *string         `json:"description,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

type UpdateRequest struct {
	OrgID       snowflake.ID     `json:"org_id"`
	ID          string           `json:"id"`
	Name        *string          `json:"name,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Description *string          `json:"description,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}
