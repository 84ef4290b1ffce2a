package audit

import (
	"github.com/splitfold/royalty/internal/audit/repository"
	"github.com/splitfold/royalty/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
