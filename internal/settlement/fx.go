package settlement

import (
	"github.com/splitfold/royalty/internal/settlement/repository"
	"github.com/splitfold/royalty/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
