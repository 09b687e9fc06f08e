package tax

import (
	"github.com/dojohq/dojobill/internal/tax/repository"
	"github.com/dojohq/dojobill/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewRegistry),
	fx.Provide(service.NewService),
)
