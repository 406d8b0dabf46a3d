package token

import (
	"github.com/axiomprotocol/susu/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.service",
	fx.Provide(service.NewService),
)
