package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	ListActive(ctx context.Context, orgID snowflake.ID) ([]TaxRate, error)
	Create(ctx context.Context, rate *TaxRate) error
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*TaxRate, error)
	List(ctx context.Context, orgID snowflake.ID, filter ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, rate *TaxRate) error
}
