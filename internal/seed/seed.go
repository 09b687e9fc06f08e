// Package seed bootstraps a development environment with a standard tax
// rate catalog so a fresh database is immediately usable.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/config"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type catalogRate struct {
	Name        string
	Rate        string
	Description string
}

// Canadian sales taxes are the default catalog; other countries get GST
// only as a placeholder the operator is expected to adjust.
var catalogs = map[string][]catalogRate{
	"CA": {
		{"GST", "0.05", "Goods and Services Tax"},
		{"PST", "0.07", "Provincial Sales Tax (BC)"},
		{"HST", "0.13", "Harmonized Sales Tax (ON)"},
		{"QST", "0.09975", "Quebec Sales Tax"},
	},
}

// EnsureStandardTaxRates creates the standard rate catalog for the
// configured seed organization. Idempotent: rates are keyed by name, and
// existing rows are never modified.
func EnsureStandardTaxRates(db *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if cfg.SeedOrgID == "" {
		return nil
	}
	orgID, err := snowflake.ParseString(cfg.SeedOrgID)
	if err != nil {
		return err
	}

	catalog, ok := catalogs[cfg.DefaultCountry]
	if !ok {
		catalog = []catalogRate{{"GST", "0.05", "Goods and Services Tax"}}
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range catalog {
			if err := ensureTaxRateTx(ctx, tx, node, orgID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureTaxRateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID, entry catalogRate) error {
	var existing taxdomain.TaxRate
	err := tx.WithContext(ctx).
		Where("org_id = ? AND name = ?", orgID, entry.Name).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	fraction, err := decimal.NewFromString(entry.Rate)
	if err != nil {
		return err
	}
	description := entry.Description
	rate := taxdomain.TaxRate{
		ID:          node.Generate(),
		OrgID:       orgID,
		Name:        entry.Name,
		Rate:        fraction,
		Description: &description,
		IsActive:    true,
	}
	return tx.WithContext(ctx).Create(&rate).Error
}
