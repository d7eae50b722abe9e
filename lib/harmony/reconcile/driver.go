// Package reconcile assigns coordinated tasks to the nodes of a cluster and
// takes them back from nodes that died. Every node runs a Driver; the
// leader additionally resolves unassigned tasks and releases the tasks of
// nodes that are no longer live. All decisions go through the task store
// so a node never needs to talk to another node directly.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
	"github.com/raulk/clock"
	"github.com/samber/lo"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/harmony/taskorch"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskstore"
	"github.com/filecoin-project/taskcoord/metrics"
)

var log = logging.Logger("reconcile")

// Orchestrator is the part of the node orchestrator the driver steers.
type Orchestrator interface {
	NodeID() string
	DeployedCoordinatedTasks() []string
	ScheduleCoordinatedTask(ctx context.Context, name string) error
	StopExecution(ctx context.Context, name string) error
	IsRunningLocally(name string) bool
	RetryFailed(ctx context.Context) error
}

type Options struct {
	// Interval between two passes.
	Interval time.Duration
	// CleanEvery makes the leader release the tasks of dead nodes every
	// n-th pass.
	CleanEvery int
	// ReleaseOnStop releases this node's tasks when the driver stops.
	ReleaseOnStop bool
}

type Driver struct {
	store    taskstore.TaskStore
	orch     Orchestrator
	members  Membership
	resolver Resolver
	clock    clock.Clock
	opts     Options

	self string

	// one pass at a time
	passLk   sync.Mutex
	passes   int
	lastLive []string

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewDriver(store taskstore.TaskStore, orch Orchestrator, members Membership, resolver Resolver, clk clock.Clock, opts Options) (*Driver, error) {
	if members.LocalNodeID() != orch.NodeID() {
		return nil, xerrors.Errorf("membership node %q and orchestrator node %q differ", members.LocalNodeID(), orch.NodeID())
	}
	if opts.Interval <= 0 {
		return nil, xerrors.Errorf("reconcile interval must be positive")
	}
	if opts.CleanEvery < 1 {
		opts.CleanEvery = 1
	}
	return &Driver{
		store:    store,
		orch:     orch,
		members:  members,
		resolver: resolver,
		clock:    clk,
		opts:     opts,
		self:     orch.NodeID(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// RunOnce runs one reconciliation pass.
func (d *Driver) RunOnce(ctx context.Context) error {
	d.passLk.Lock()
	defer d.passLk.Unlock()

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.NodeID, d.self))
	stop := metrics.Timer(ctx, metrics.ReconcileLatency)
	defer stop()
	stats.Record(ctx, metrics.ReconcilePasses.M(1))

	err := d.runOnce(ctx)
	if err != nil {
		stats.Record(ctx, metrics.ReconcileErrors.M(1))
	}
	return err
}

func (d *Driver) runOnce(ctx context.Context) error {
	var result *multierror.Error

	if err := d.stopDisowned(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.pauseDeactivated(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.scheduleAssigned(ctx, taskstore.StateActivated); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.orch.RetryFailed(ctx); err != nil {
		log.Warnw("retrying failed store writes", "error", err)
	}

	leader, err := d.members.IsLeader(ctx)
	if err != nil {
		result = multierror.Append(result, xerrors.Errorf("checking leadership: %w", err))
	}
	if leader {
		if err := d.leaderPass(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := d.scheduleAssigned(ctx, taskstore.StateNone); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (d *Driver) leaderPass(ctx context.Context) error {
	live, err := d.members.LiveNodes(ctx)
	if err != nil {
		return xerrors.Errorf("listing live nodes: %w", err)
	}

	var result *multierror.Error
	for _, gone := range lo.Without(d.lastLive, live...) {
		log.Warnw("node left the cluster, releasing its tasks", "node", gone)
		if err := d.store.ReleaseByNode(ctx, gone); err != nil {
			result = multierror.Append(result, xerrors.Errorf("releasing tasks of %s: %w", gone, err))
		}
	}
	d.lastLive = live

	if d.passes%d.opts.CleanEvery == 0 {
		log.Debugw("cleaning task store", "pass", d.passes)
		if err := d.clean(ctx, live); err != nil {
			result = multierror.Append(result, err)
		}
		d.passes = 0
	}
	d.passes++

	if err := d.resolveUnassigned(ctx, live); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// clean releases tasks whose owner is not live.
func (d *Driver) clean(ctx context.Context, live []string) error {
	assigned, err := d.store.ListAssignedIncomplete(ctx)
	if err != nil {
		return xerrors.Errorf("listing assigned tasks: %w", err)
	}
	orphaned := lo.FilterMap(assigned, func(t taskstore.CoordinatedTask, _ int) (string, bool) {
		return t.Name, !lo.Contains(live, t.OwnerNodeID)
	})
	if len(orphaned) == 0 {
		return nil
	}
	if err := d.store.ReleaseByNames(ctx, orphaned); err != nil {
		return xerrors.Errorf("releasing orphaned tasks: %w", err)
	}
	log.Infow("released tasks of dead nodes", "tasks", orphaned)
	stats.Record(ctx, metrics.TasksReleased.M(int64(len(orphaned))))
	return nil
}

// resolveUnassigned claims every unassigned task for a live node.
func (d *Driver) resolveUnassigned(ctx context.Context, live []string) error {
	unassigned, err := d.store.ListUnassignedIncomplete(ctx)
	if err != nil {
		return xerrors.Errorf("listing unassigned tasks: %w", err)
	}
	if len(unassigned) == 0 || len(live) == 0 {
		return nil
	}

	assigned, err := d.store.ListAssignedIncomplete(ctx)
	if err != nil {
		return xerrors.Errorf("listing assigned tasks: %w", err)
	}
	load := lo.CountValuesBy(assigned, func(t taskstore.CoordinatedTask) string { return t.OwnerNodeID })

	var result *multierror.Error
	for _, name := range unassigned {
		node, ok := d.resolver.Resolve(name, live, load)
		if !ok {
			continue
		}
		claimed, err := d.store.ClaimUnassigned(ctx, name, node)
		if err != nil {
			result = multierror.Append(result, xerrors.Errorf("claiming %s for %s: %w", name, node, err))
			continue
		}
		if !claimed {
			log.Debugw("task was claimed concurrently", "task", name)
			continue
		}
		load[node]++
		log.Infow("assigned task", "task", name, "node", node)
		nctx, _ := tag.New(ctx, tag.Upsert(metrics.NodeID, node))
		stats.Record(nctx, metrics.TasksClaimed.M(1))
	}
	return result.ErrorOrNil()
}

// stopDisowned stops local jobs of tasks this node does not own anymore.
func (d *Driver) stopDisowned(ctx context.Context) error {
	assigned, err := d.store.ListAssignedIncomplete(ctx)
	if err != nil {
		return xerrors.Errorf("listing assigned tasks: %w", err)
	}
	mine := lo.SliceToMap(lo.Filter(assigned, func(t taskstore.CoordinatedTask, _ int) bool {
		return t.OwnerNodeID == d.self
	}), func(t taskstore.CoordinatedTask) (string, struct{}) {
		return t.Name, struct{}{}
	})

	var result *multierror.Error
	for _, name := range d.orch.DeployedCoordinatedTasks() {
		if _, ok := mine[name]; ok || !d.orch.IsRunningLocally(name) {
			continue
		}
		log.Warnw("task is not owned by this node anymore, stopping it", "task", name)
		if err := d.orch.StopExecution(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// pauseDeactivated stops the deactivated tasks of this node and records
// them PAUSED.
func (d *Driver) pauseDeactivated(ctx context.Context) error {
	names, err := d.store.ListByOwnerAndState(ctx, d.self, taskstore.StateDeactivated)
	if err != nil {
		return xerrors.Errorf("listing deactivated tasks: %w", err)
	}
	deployed := d.orch.DeployedCoordinatedTasks()

	var result *multierror.Error
	for _, name := range names {
		if !lo.Contains(deployed, name) {
			log.Infow("deactivated task is not deployed on this node, ignoring it", "task", name)
			continue
		}
		if err := d.orch.StopExecution(ctx, name); err != nil {
			result = multierror.Append(result, xerrors.Errorf("stopping %s: %w", name, err))
			continue
		}
		ok, err := d.store.SetStateForOwner(ctx, name, taskstore.StatePaused, d.self)
		switch {
		case err != nil:
			result = multierror.Append(result, xerrors.Errorf("pausing %s: %w", name, err))
		case !ok:
			log.Infow("task changed owner while pausing", "task", name)
		default:
			log.Infow("paused deactivated task", "task", name)
		}
	}
	return result.ErrorOrNil()
}

// scheduleAssigned starts the tasks of this node in the given state. Tasks
// failing for another reason than the store are set back to NONE.
func (d *Driver) scheduleAssigned(ctx context.Context, state taskstore.State) error {
	names, err := d.store.ListByOwnerAndState(ctx, d.self, state)
	if err != nil {
		return xerrors.Errorf("listing %s tasks: %w", state, err)
	}
	if len(names) == 0 {
		return nil
	}
	deployed := d.orch.DeployedCoordinatedTasks()

	var result *multierror.Error
	var errored []string
	for _, name := range names {
		if !lo.Contains(deployed, name) {
			log.Infow("assigned task is not deployed on this node, ignoring it", "task", name)
			continue
		}
		if err := d.orch.ScheduleCoordinatedTask(ctx, name); err != nil {
			if taskorch.CodeOf(err) != taskorch.CodeDatabaseError {
				errored = append(errored, name)
			}
			result = multierror.Append(result, err)
		}
	}
	if err := d.store.SetState(ctx, errored, taskstore.StateNone); err != nil {
		result = multierror.Append(result, xerrors.Errorf("resetting errored tasks: %w", err))
	}
	return result.ErrorOrNil()
}

// Start releases whatever a previous incarnation of this node owned and
// starts the periodic passes.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.store.ReleaseByNode(ctx, d.self); err != nil {
		return xerrors.Errorf("releasing stale tasks of %s: %w", d.self, err)
	}
	d.started.Store(true)
	go d.run()
	return nil
}

func (d *Driver) run() {
	defer close(d.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := d.clock.Ticker(d.opts.Interval)
	defer ticker.Stop()
	b := &backoff.Backoff{Min: d.opts.Interval, Max: 10 * d.opts.Interval, Factor: 2}
	var next time.Time

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
		}
		if d.clock.Now().Before(next) {
			continue
		}
		if err := d.RunOnce(ctx); err != nil {
			wait := b.Duration()
			next = d.clock.Now().Add(wait)
			log.Errorw("reconciliation pass failed", "error", err, "backoff", wait)
			continue
		}
		b.Reset()
	}
}

// Stop ends the periodic passes and, if configured, releases this node's
// tasks so other nodes pick them up right away.
func (d *Driver) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })
	if !d.started.Load() {
		return nil
	}
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !d.opts.ReleaseOnStop {
		return nil
	}

	for _, name := range d.orch.DeployedCoordinatedTasks() {
		if err := d.orch.StopExecution(ctx, name); err != nil {
			log.Warnw("stopping task on shutdown", "task", name, "error", err)
		}
	}
	if err := d.store.ReleaseByNode(ctx, d.self); err != nil {
		return xerrors.Errorf("releasing tasks of %s: %w", d.self, err)
	}
	return nil
}
