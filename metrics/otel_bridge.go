package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

func init() {
	// Instruments created through otel (the local scheduler's run counters)
	// are reported on the default prometheus registry, next to the
	// opencensus views served by Exporter.
	if bridge, err := prometheus.New(prometheus.WithNamespace("taskcoord_otel")); err != nil {
		log.Errorf("could not create the otel prometheus exporter: %v", err)
	} else {
		provider := metric.NewMeterProvider(metric.WithReader(bridge))
		otel.SetMeterProvider(provider)
	}
}
