// Package taskorch keeps a node's local scheduler and the shared task store
// in agreement. Tasks are either coordinated, meaning at most one node of the
// cluster runs them and ownership lives in the store, or local, meaning they
// are pinned to their nodes and never touch the store.
//
// Local execution of a coordinated task only starts once the store agrees,
// and a local pause is only applied once the store recorded it, so a store
// outage can delay work but never makes two nodes run the same task.
package taskorch

import (
	"context"
	"errors"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/harmony/localsched"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskstore"
	"github.com/filecoin-project/taskcoord/metrics"
)

var log = logging.Logger("taskorch")

// LocalScheduler runs the jobs of this node.
type LocalScheduler interface {
	Schedule(ctx context.Context, name string) error
	Reschedule(ctx context.Context, name string) error
	Pause(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) (bool, error)
	IsScheduled(name string) bool
	State(name string) localsched.LocalState
	CanHost(kind string) bool
}

// TaskRepository persists the task infos and paused flags of this node.
type TaskRepository interface {
	AddTask(ctx context.Context, info localsched.TaskInfo) error
	GetTask(ctx context.Context, name string) (localsched.TaskInfo, error)
	SetPaused(ctx context.Context, name string, paused bool) error
	IsPaused(ctx context.Context, name string) (bool, error)
}

// ClusterConfig tells whether coordination is on and which tasks are pinned.
type ClusterConfig interface {
	CoordinationEnabled() bool
	PinnedServers(name string) []string
}

const (
	queueAddition     = "addition"
	queueDeactivation = "deactivation"
	queueActivation   = "activation"
)

type Orchestrator struct {
	nodeID string
	store  taskstore.TaskStore
	sched  LocalScheduler
	repo   TaskRepository
	cfg    ClusterConfig

	// coordinated tasks deployed on this node
	deployed *xsync.MapOf[string, struct{}]
	// coordinated tasks paused locally that resume rather than reschedule
	stopped *xsync.MapOf[string, struct{}]
	locks   *xsync.MapOf[string, *sync.Mutex]

	additionFailed     *retryList
	deactivationFailed *retryList
	activationFailed   *retryList
}

func New(nodeID string, store taskstore.TaskStore, sched LocalScheduler, repo TaskRepository, cfg ClusterConfig) *Orchestrator {
	return &Orchestrator{
		nodeID:             nodeID,
		store:              store,
		sched:              sched,
		repo:               repo,
		cfg:                cfg,
		deployed:           xsync.NewMapOf[struct{}](),
		stopped:            xsync.NewMapOf[struct{}](),
		locks:              xsync.NewMapOf[*sync.Mutex](),
		additionFailed:     newRetryList(queueAddition),
		deactivationFailed: newRetryList(queueDeactivation),
		activationFailed:   newRetryList(queueActivation),
	}
}

func (o *Orchestrator) NodeID() string {
	return o.nodeID
}

func (o *Orchestrator) lock(name string) func() {
	mu, _ := o.locks.LoadOrStore(name, new(sync.Mutex))
	mu.Lock()
	return mu.Unlock
}

// IsCoordinated reports whether the cluster decides where name runs.
// Pinned tasks always run on the nodes they are pinned to.
func (o *Orchestrator) IsCoordinated(name string) bool {
	if len(o.cfg.PinnedServers(name)) > 0 {
		return false
	}
	return o.cfg.CoordinationEnabled()
}

func (o *Orchestrator) isDeployed(name string) bool {
	_, ok := o.deployed.Load(name)
	return ok
}

// RegisterTask stores the task info in the local repository, replacing a
// previous version. It does not schedule anything.
func (o *Orchestrator) RegisterTask(ctx context.Context, info localsched.TaskInfo) error {
	return o.repo.AddTask(ctx, info)
}

// HandleTask deploys a registered task. A coordinated task is only added to
// the store, its execution starts when the cluster assigns it to this node.
// Other tasks are scheduled right away.
func (o *Orchestrator) HandleTask(ctx context.Context, name string) error {
	defer o.lock(name)()

	info, err := o.repo.GetTask(ctx, name)
	if err != nil {
		if errors.Is(err, localsched.ErrTaskNotFound) {
			return taskErr(CodeNoTaskExists, name, err)
		}
		return taskErr(CodeUnknown, name, err)
	}
	if !o.sched.CanHost(info.Kind) {
		return taskErr(CodeTaskNodeNotAvailable, name, xerrors.Errorf("task kind %q is not registered on node %s", info.Kind, o.nodeID))
	}

	if o.IsCoordinated(name) {
		log.Debugw("adding coordinated task to the store", "task", name)
		o.deployed.Store(name, struct{}{})
		if err := o.store.AddTaskIfNotExist(ctx, name); err != nil {
			o.queue(ctx, o.additionFailed, name)
			return taskErr(CodeDatabaseError, name, err)
		}
		return nil
	}

	if err := o.sched.Schedule(ctx, name); err != nil {
		if errors.Is(err, localsched.ErrTaskTypeUnavailable) {
			return taskErr(CodeTaskNodeNotAvailable, name, err)
		}
		return taskErr(CodeUnknown, name, err)
	}
	return nil
}

// ScheduleCoordinatedTask starts a task this node was assigned and records
// it RUNNING. When the store write fails the local job is paused again.
func (o *Orchestrator) ScheduleCoordinatedTask(ctx context.Context, name string) error {
	defer o.lock(name)()

	if _, ok := o.stopped.Load(name); ok {
		if err := o.sched.Resume(ctx, name); err != nil {
			return taskErr(CodeUnknown, name, err)
		}
		o.stopped.Delete(name)
	} else if !o.sched.IsScheduled(name) {
		if err := o.sched.Schedule(ctx, name); err != nil {
			if errors.Is(err, localsched.ErrTaskTypeUnavailable) {
				return taskErr(CodeTaskNodeNotAvailable, name, err)
			}
			return taskErr(CodeUnknown, name, err)
		}
	}

	if err := o.store.SetState(ctx, []string{name}, taskstore.StateRunning); err != nil {
		log.Errorw("could not record task running, pausing it locally", "task", name, "error", err)
		if perr := o.sched.Pause(ctx, name); perr != nil {
			log.Errorw("pausing task after failed store write", "task", name, "error", perr)
		}
		o.stopped.Store(name, struct{}{})
		return taskErr(CodeDatabaseError, name, err)
	}
	log.Infow("running coordinated task", "task", name, "node", o.nodeID)
	return nil
}

// StopExecution pauses the local job of a coordinated task, keeping it
// resumable.
func (o *Orchestrator) StopExecution(ctx context.Context, name string) error {
	defer o.lock(name)()
	return o.stopExecution(ctx, name)
}

func (o *Orchestrator) stopExecution(ctx context.Context, name string) error {
	if err := o.sched.Pause(ctx, name); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	if o.sched.IsScheduled(name) {
		o.stopped.Store(name, struct{}{})
	}
	return nil
}

// DeleteTask removes the task from this node. The store row of a
// coordinated task is deleted on a best effort basis.
func (o *Orchestrator) DeleteTask(ctx context.Context, name string) (bool, error) {
	defer o.lock(name)()

	deleted, err := o.sched.Delete(ctx, name)
	if _, ok := o.deployed.LoadAndDelete(name); ok {
		if serr := o.store.DeleteByNames(ctx, []string{name}); serr != nil {
			log.Errorw("deleting task from the store", "task", name, "error", serr)
		}
		o.stopped.Delete(name)
		o.additionFailed.remove(name)
		o.deactivationFailed.remove(name)
		o.activationFailed.remove(name)
	}
	if err != nil {
		return deleted, taskErr(CodeUnknown, name, err)
	}
	return deleted, nil
}

// HandleTaskPause pauses a task. For a coordinated task the store is asked
// to deactivate it and the owning node stops it; if the store can't be
// reached the request is queued and the task keeps running.
func (o *Orchestrator) HandleTaskPause(ctx context.Context, name string) error {
	defer o.lock(name)()

	if o.isDeployed(name) {
		// a queued activation must not undo this request
		o.dropQueued(ctx, o.activationFailed, name)
	}

	deactivated, err := o.isDeactivated(ctx, name)
	if err != nil {
		log.Warnw("could not read task state before pausing", "task", name, "error", err)
	} else if deactivated {
		return nil
	}

	if o.isDeployed(name) {
		if err := o.store.Deactivate(ctx, name); err != nil {
			log.Errorw("deactivating task failed, will retry", "task", name, "error", err)
			o.queue(ctx, o.deactivationFailed, name)
			return nil
		}
		log.Infow("deactivated coordinated task", "task", name)
		return nil
	}

	if err := o.sched.Pause(ctx, name); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	if err := o.repo.SetPaused(ctx, name, true); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	return nil
}

// HandleTaskResume resumes a paused task. A deactivated coordinated task is
// activated in the store and picked up again by its owner; a coordinated
// task which isn't deactivated is left alone.
func (o *Orchestrator) HandleTaskResume(ctx context.Context, name string) error {
	defer o.lock(name)()

	if o.isDeployed(name) {
		o.dropQueued(ctx, o.deactivationFailed, name)

		deactivated, err := o.isDeactivated(ctx, name)
		if err != nil {
			log.Errorw("reading task state failed, will retry activation", "task", name, "error", err)
			o.queue(ctx, o.activationFailed, name)
			return nil
		}
		if !deactivated {
			// Only the owner may run the task. Resuming it here would start
			// a second copy, so a task that isn't deactivated stays as is.
			log.Debugw("coordinated task is not deactivated, nothing to resume", "task", name)
			return nil
		}
		if err := o.store.Activate(ctx, name); err != nil {
			log.Errorw("activating task failed, will retry", "task", name, "error", err)
			o.queue(ctx, o.activationFailed, name)
			return nil
		}
		log.Infow("activated coordinated task", "task", name)
		return nil
	}

	if err := o.sched.Resume(ctx, name); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	if err := o.repo.SetPaused(ctx, name, false); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	return nil
}

// IsDeactivated reports whether the task is paused. Coordinated tasks are
// asked to the store.
func (o *Orchestrator) IsDeactivated(ctx context.Context, name string) (bool, error) {
	return o.isDeactivated(ctx, name)
}

func (o *Orchestrator) isDeactivated(ctx context.Context, name string) (bool, error) {
	if o.isDeployed(name) {
		st, err := o.store.GetState(ctx, name)
		switch {
		case errors.Is(err, taskstore.ErrTaskNotFound):
			return false, nil
		case err != nil:
			return false, taskErr(CodeDatabaseError, name, err)
		}
		return st == taskstore.StateCompleted || st == taskstore.StateDeactivated || st == taskstore.StatePaused, nil
	}
	paused, err := o.repo.IsPaused(ctx, name)
	if err != nil {
		return false, taskErr(CodeUnknown, name, err)
	}
	return paused, nil
}

// IsTaskRunning reports whether the task runs somewhere. For coordinated
// tasks that is the store state, other tasks are checked locally.
func (o *Orchestrator) IsTaskRunning(ctx context.Context, name string) (bool, error) {
	if o.isDeployed(name) {
		if o.IsRunningLocally(name) {
			return true, nil
		}
		st, err := o.store.GetState(ctx, name)
		switch {
		case errors.Is(err, taskstore.ErrTaskNotFound):
			return false, nil
		case err != nil:
			return false, taskErr(CodeDatabaseError, name, err)
		}
		return st == taskstore.StateRunning, nil
	}
	return o.sched.State(name) == localsched.StateRunning, nil
}

// IsRunningLocally reports whether the local job fires.
func (o *Orchestrator) IsRunningLocally(name string) bool {
	st := o.sched.State(name)
	return st == localsched.StateRunning || st == localsched.StateError
}

// RescheduleTask restarts the local job with the current task info.
func (o *Orchestrator) RescheduleTask(ctx context.Context, name string) error {
	defer o.lock(name)()

	info, err := o.repo.GetTask(ctx, name)
	if err != nil {
		return taskErr(CodeNoTaskExists, name, err)
	}
	if !o.sched.CanHost(info.Kind) {
		return taskErr(CodeTaskNodeNotAvailable, name, xerrors.Errorf("task kind %q is not registered", info.Kind))
	}
	if err := o.sched.Reschedule(ctx, name); err != nil {
		return taskErr(CodeUnknown, name, err)
	}
	return nil
}

// LocalState returns the state of the local job.
func (o *Orchestrator) LocalState(name string) localsched.LocalState {
	return o.sched.State(name)
}

// DeployedCoordinatedTasks returns the coordinated tasks of this node, sorted.
func (o *Orchestrator) DeployedCoordinatedTasks() []string {
	var out []string
	o.deployed.Range(func(name string, _ struct{}) bool {
		out = append(out, name)
		return true
	})
	sort.Strings(out)
	return out
}

func (o *Orchestrator) AdditionFailedTasks() []string {
	return o.additionFailed.list()
}

func (o *Orchestrator) DeactivationFailedTasks() []string {
	return o.deactivationFailed.list()
}

func (o *Orchestrator) ActivationFailedTasks() []string {
	return o.activationFailed.list()
}

func (o *Orchestrator) queue(ctx context.Context, l *retryList, name string) {
	l.add(name)
	metrics.RecordRetryQueue(ctx, l.name, l.len())
}

func (o *Orchestrator) dropQueued(ctx context.Context, l *retryList, name string) {
	if l.remove(name) {
		metrics.RecordRetryQueue(ctx, l.name, l.len())
	}
}

// RetryFailed replays the store writes that failed earlier. Writes that
// succeed leave their retry list. Each replay holds the task lock, and a
// name a newer request took off its list in the meantime is skipped.
func (o *Orchestrator) RetryFailed(ctx context.Context) error {
	var err error

	err = multierr.Append(err, o.replay(o.additionFailed, func(name string) error {
		if !o.isDeployed(name) {
			return nil
		}
		if aerr := o.store.AddTaskIfNotExist(ctx, name); aerr != nil {
			return xerrors.Errorf("adding %s: %w", name, aerr)
		}
		log.Infow("added task to the store after retry", "task", name)
		return nil
	}))

	err = multierr.Append(err, o.replay(o.deactivationFailed, func(name string) error {
		if derr := o.store.Deactivate(ctx, name); derr != nil {
			return xerrors.Errorf("deactivating %s: %w", name, derr)
		}
		log.Infow("deactivated task after retry", "task", name)
		return nil
	}))

	err = multierr.Append(err, o.replay(o.activationFailed, func(name string) error {
		if aerr := o.store.Activate(ctx, name); aerr != nil {
			return xerrors.Errorf("activating %s: %w", name, aerr)
		}
		log.Infow("activated task after retry", "task", name)
		return nil
	}))

	for _, l := range []*retryList{o.additionFailed, o.deactivationFailed, o.activationFailed} {
		metrics.RecordRetryQueue(ctx, l.name, l.len())
	}
	return err
}

func (o *Orchestrator) replay(l *retryList, write func(name string) error) error {
	var err error
	for _, name := range l.list() {
		func() {
			defer o.lock(name)()
			if !l.contains(name) {
				return
			}
			if werr := write(name); werr != nil {
				err = multierr.Append(err, werr)
				return
			}
			l.remove(name)
		}()
	}
	return err
}
