package contribution

import (
	"github.com/axiomprotocol/susu/internal/contribution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contribution.service",
	fx.Provide(service.NewService),
)
