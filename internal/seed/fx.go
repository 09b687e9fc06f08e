package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module runs the development catalog seed after migrations. Outside
// development it is a no-op.
var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
		if cfg.Environment != "development" {
			return nil
		}
		return EnsureStandardTaxRates(conn, node, cfg)
	}),
)
