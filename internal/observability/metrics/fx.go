package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// NewRegistry returns a dedicated registry so the /metrics endpoint
// serves only engine instruments plus the standard process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	return reg
}

var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(func(reg *prometheus.Registry) prometheus.Registerer { return reg }),
	fx.Provide(New),
)
