package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	logging "github.com/ipfs/go-log/v2"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 8000, 10000, 20000, 30000,
)

var queueSizeDistribution = view.Distribution(0, 1, 2, 3, 5, 7, 10, 15, 25, 35, 50, 70, 90, 130, 200, 300, 500, 1000)

// Tags
var (
	// common
	Version, _  = tag.NewKey("version")
	Commit, _   = tag.NewKey("commit")
	NodeType, _ = tag.NewKey("node_type")
	NodeID, _   = tag.NewKey("node_id")

	// coordination
	StoreOp, _     = tag.NewKey("store_op")
	TaskName, _    = tag.NewKey("task_name")
	RetryQueue, _  = tag.NewKey("retry_queue")
	LocalAction, _ = tag.NewKey("local_action")
)

// Measures
var (
	TaskCoordInfo = stats.Int64("info", "Arbitrary counter to tag taskcoord info to", stats.UnitDimensionless)

	StoreOps       = stats.Int64("taskstore/ops", "Counter of task store operations", stats.UnitDimensionless)
	StoreErrors    = stats.Int64("taskstore/errors", "Counter of failed task store operations", stats.UnitDimensionless)
	StoreLatencyMs = stats.Float64("taskstore/latency_ms", "Duration of task store operations", stats.UnitMilliseconds)

	LocalActions    = stats.Int64("taskorch/local_actions", "Counter of local scheduler actions", stats.UnitDimensionless)
	RetryQueueDepth = stats.Int64("taskorch/retry_queue_depth", "Number of tasks waiting for a store retry", stats.UnitDimensionless)

	ReconcilePasses  = stats.Int64("reconcile/passes", "Counter of reconciliation passes", stats.UnitDimensionless)
	ReconcileErrors  = stats.Int64("reconcile/errors", "Counter of failed reconciliation passes", stats.UnitDimensionless)
	ReconcileLatency = stats.Float64("reconcile/latency_ms", "Duration of reconciliation passes", stats.UnitMilliseconds)
	TasksClaimed     = stats.Int64("reconcile/tasks_claimed", "Counter of tasks claimed for a node", stats.UnitDimensionless)
	TasksReleased    = stats.Int64("reconcile/tasks_released", "Counter of tasks released from dead nodes", stats.UnitDimensionless)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "Taskcoord node information",
		Measure:     TaskCoordInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit, NodeType, NodeID},
	}
	StoreOpsView = &view.View{
		Measure:     StoreOps,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{StoreOp},
	}
	StoreErrorsView = &view.View{
		Measure:     StoreErrors,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{StoreOp},
	}
	StoreLatencyView = &view.View{
		Measure:     StoreLatencyMs,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{StoreOp},
	}
	LocalActionsView = &view.View{
		Measure:     LocalActions,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{LocalAction},
	}
	RetryQueueDepthView = &view.View{
		Measure:     RetryQueueDepth,
		Aggregation: queueSizeDistribution,
		TagKeys:     []tag.Key{RetryQueue},
	}
	ReconcilePassesView = &view.View{
		Measure:     ReconcilePasses,
		Aggregation: view.Count(),
	}
	ReconcileErrorsView = &view.View{
		Measure:     ReconcileErrors,
		Aggregation: view.Count(),
	}
	ReconcileLatencyView = &view.View{
		Measure:     ReconcileLatency,
		Aggregation: defaultMillisecondsDistribution,
	}
	TasksClaimedView = &view.View{
		Measure:     TasksClaimed,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{NodeID},
	}
	TasksReleasedView = &view.View{
		Measure:     TasksReleased,
		Aggregation: view.Sum(),
	}
)

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	views := []*view.View{
		InfoView,
		StoreOpsView,
		StoreErrorsView,
		StoreLatencyView,
		LocalActionsView,
		RetryQueueDepthView,
		ReconcilePassesView,
		ReconcileErrorsView,
		ReconcileLatencyView,
		TasksClaimedView,
		TasksReleasedView,
	}
	return views
}()

// RegisterViews adds views to the default list without modifying this file.
func RegisterViews(v ...*view.View) {
	DefaultViews = append(DefaultViews, v...)
}

var (
	exporterOnce sync.Once
	exporter     http.Handler
)

// Exporter returns the Prometheus handler serving all registered views on
// the default prometheus registry. The exporter is created once per process.
func Exporter() http.Handler {
	exporterOnce.Do(func() {
		// Prometheus globals are exposed as interfaces, but the prometheus
		// OpenCensus exporter expects a concrete *Registry. The concrete type of
		// the globals are actually *Registry, so we downcast them, staying
		// defensive in case things change under the hood.
		registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
		if !ok {
			log.Warnf("failed to export default prometheus registry; some metrics will be unavailable; unexpected type: %T", promclient.DefaultRegisterer)
		}
		exp, err := prometheus.NewExporter(prometheus.Options{
			Registry:  registry,
			Namespace: "taskcoord",
		})
		if err != nil {
			log.Errorf("could not create the prometheus stats exporter: %v", err)
			exporter = http.NotFoundHandler()
			return
		}
		exporter = exp
	})
	return exporter
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}

// RecordStoreOp records one task store call, tagging it with the operation
// name and counting it as an error when err is not nil.
func RecordStoreOp(ctx context.Context, op string, start time.Time, err error) {
	ctx, _ = tag.New(ctx, tag.Upsert(StoreOp, op))
	stats.Record(ctx, StoreOps.M(1), StoreLatencyMs.M(SinceInMilliseconds(start)))
	if err != nil {
		stats.Record(ctx, StoreErrors.M(1))
	}
}

// RecordLocalAction counts one call into the local scheduler.
func RecordLocalAction(ctx context.Context, action string) {
	ctx, _ = tag.New(ctx, tag.Upsert(LocalAction, action))
	stats.Record(ctx, LocalActions.M(1))
}

// RecordRetryQueue records the depth of one of the store retry queues.
func RecordRetryQueue(ctx context.Context, queue string, depth int) {
	ctx, _ = tag.New(ctx, tag.Upsert(RetryQueue, queue))
	stats.Record(ctx, RetryQueueDepth.M(int64(depth)))
}
