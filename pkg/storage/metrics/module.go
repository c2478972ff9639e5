package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/sgl-project/fallible/pkg/storage"
)

// NewRegistry returns a registry holding the storage collectors plus the Go
// and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Module gives each app its own registry, exposed as both Registerer and
// Gatherer, and replaces the app's storage.Facade with an instrumented one.
var Module = fx.Options(
	fx.Provide(
		NewRegistry,
		func(reg *prometheus.Registry) prometheus.Registerer { return reg },
		func(reg *prometheus.Registry) prometheus.Gatherer { return reg },
		NewMetrics,
	),
	fx.Decorate(func(m *Metrics, f storage.Facade) storage.Facade { return m.Instrument(f) }),
)
