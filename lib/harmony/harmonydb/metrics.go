package harmonydb

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/filecoin-project/taskcoord/metrics"
)

var (
	dbTag, _     = tag.NewKey("db_name")
	driverTag, _ = tag.NewKey("db_driver")
	pre          = "harmonydb_"
	waitsBuckets = []float64{0, 1, 2, 5, 10, 20, 30, 50, 80, 130, 210, 340, 550, 890, 1440}
)

// DBMeasures groups all db metrics. Waits is a plain prometheus histogram so
// it is scraped even before any opencensus view is registered.
var DBMeasures = struct {
	Hits            *stats.Int64Measure
	TotalWait       *stats.Int64Measure
	Waits           prometheus.Histogram
	OpenConnections *stats.Int64Measure
	Errors          *stats.Int64Measure
}{
	Hits:      stats.Int64(pre+"hits", "Total number of uses.", stats.UnitDimensionless),
	TotalWait: stats.Int64(pre+"total_wait", "Total delay. A numerator over hits to get average wait.", stats.UnitMilliseconds),
	Waits: prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    pre + "waits",
		Buckets: waitsBuckets,
		Help:    "The histogram of waits for query completions.",
	}),
	OpenConnections: stats.Int64(pre+"open_connections", "Total connection count.", stats.UnitDimensionless),
	Errors:          stats.Int64(pre+"errors", "Total error count.", stats.UnitDimensionless),
}

func init() {
	// views are registered by the binary together with metrics.DefaultViews
	metrics.RegisterViews(
		&view.View{
			Measure:     DBMeasures.Hits,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{dbTag, driverTag},
		},
		&view.View{
			Measure:     DBMeasures.TotalWait,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{dbTag, driverTag},
		},
		&view.View{
			Measure:     DBMeasures.OpenConnections,
			Aggregation: view.LastValue(),
			TagKeys:     []tag.Key{dbTag, driverTag},
		},
		&view.View{
			Measure:     DBMeasures.Errors,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{dbTag, driverTag},
		},
	)
	err := prometheus.Register(DBMeasures.Waits)
	if err != nil {
		panic(err)
	}
}
