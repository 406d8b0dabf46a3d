package pool

import (
	"github.com/axiomprotocol/susu/internal/pool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pool.service",
	fx.Provide(service.NewService),
)
