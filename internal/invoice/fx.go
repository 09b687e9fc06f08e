package invoice

import (
	"github.com/dojohq/dojobill/internal/clock"
	"github.com/dojohq/dojobill/internal/invoice/service"
	"github.com/dojohq/dojobill/internal/tax"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	clock.Module,
	tax.Module,
	fx.Provide(service.NewService),
)
