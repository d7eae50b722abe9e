package localsched

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var otelmeter = otel.Meter("localsched")

var attrKind = attribute.Key("kind")
var attrOutcomeOK = attribute.String("outcome", "ok")
var attrOutcomeError = attribute.String("outcome", "error")

var otelmetrics = struct {
	fires    metric.Int64Counter
	duration metric.Float64Histogram
}{
	fires: must(otelmeter.Int64Counter("localsched_fires",
		metric.WithDescription("Local job runs, by task kind and outcome."),
	)),
	duration: must(otelmeter.Float64Histogram("localsched_run_duration",
		metric.WithDescription("Duration of local job runs."),
		metric.WithUnit("s"),
	)),
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
