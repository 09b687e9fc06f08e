package migration

import (
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module creates the core billing tables on startup so the service is
// usable out of the box for local and self-hosted environments.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return conn.AutoMigrate(
			&taxdomain.TaxRate{},
			&invoicedomain.Invoice{},
			&invoicedomain.InvoiceLineItem{},
			&invoicedomain.InvoiceLineItemTax{},
			&invoicedomain.InvoiceStatusChange{},
		)
	}),
)
