// Package localsched runs the recurring jobs of a single node. It knows
// nothing about the cluster: whether a job may run here at all is decided
// by the orchestrator, which drives this scheduler.
package localsched

import (
	"context"
	"errors"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/metrics"
)

var log = logging.Logger("localsched")

var (
	ErrTaskNotFound        = errors.New("task not found in the local repository")
	ErrTaskTypeUnavailable = errors.New("task kind is not registered on this node")
	ErrNotScheduled        = errors.New("task is not scheduled")
)

// LocalState is the state of a job in this node's scheduler.
type LocalState int

const (
	StateNone LocalState = iota
	StateRunning
	StatePaused
	StateFinished
	StateError
)

func (s LocalState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateFinished:
		return "FINISHED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type job struct {
	info   TaskInfo
	runner Runner
	ticker *clock.Ticker
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Scheduler.lk
	paused   bool
	fired    int
	finished bool
	lastErr  error
}

// Scheduler fires every scheduled job on its interval until it is paused,
// deleted, or has fired Count times.
type Scheduler struct {
	clock clock.Clock
	reg   *Registry
	repo  *Repository

	ctx    context.Context
	cancel context.CancelFunc

	lk   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func New(reg *Registry, repo *Repository, clk clock.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clk,
		reg:    reg,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*job{},
	}
}

// CanHost reports whether this node knows the kind of the task.
func (s *Scheduler) CanHost(kind string) bool {
	_, ok := s.reg.Lookup(kind)
	return ok
}

// Repository exposes the task repository the scheduler loads jobs from.
func (s *Scheduler) Repository() *Repository {
	return s.repo
}

// Schedule starts the job of a task stored in the repository. Scheduling an
// already scheduled task does nothing. A task flagged paused in the
// repository is scheduled in paused mode.
func (s *Scheduler) Schedule(ctx context.Context, name string) error {
	s.lk.Lock()
	_, ok := s.jobs[name]
	s.lk.Unlock()
	if ok {
		return nil
	}

	info, err := s.repo.GetTask(ctx, name)
	if err != nil {
		return err
	}
	paused, err := s.repo.IsPaused(ctx, name)
	if err != nil {
		return xerrors.Errorf("reading paused flag: %w", err)
	}
	return s.start(info, paused)
}

func (s *Scheduler) start(info TaskInfo, paused bool) error {
	factory, ok := s.reg.Lookup(info.Kind)
	if !ok {
		return xerrors.Errorf("task %s kind %q: %w", info.Name, info.Kind, ErrTaskTypeUnavailable)
	}
	if info.Interval <= 0 {
		return xerrors.Errorf("task %s: interval must be positive", info.Name)
	}
	runner, err := factory(info.Properties)
	if err != nil {
		return xerrors.Errorf("creating task %s: %w", info.Name, err)
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.jobs[info.Name]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{
		info:   info,
		runner: runner,
		// the ticker is created before the loop starts so no fire is lost
		ticker: s.clock.Ticker(info.Interval),
		cancel: cancel,
		done:   make(chan struct{}),
		paused: paused,
	}
	s.jobs[info.Name] = j

	s.wg.Add(1)
	go s.loop(ctx, j)

	log.Infow("scheduled task", "task", info.Name, "kind", info.Kind, "interval", info.Interval, "paused", paused)
	metrics.RecordLocalAction(ctx, "schedule")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer close(j.done)
	defer j.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.ticker.C:
		}

		s.lk.Lock()
		paused := j.paused
		s.lk.Unlock()
		if paused {
			continue
		}

		start := time.Now()
		err := s.fire(ctx, j)
		outcome := attrOutcomeOK
		if err != nil {
			outcome = attrOutcomeError
		}
		otelmetrics.fires.Add(ctx, 1, metric.WithAttributes(attrKind.String(j.info.Kind), outcome))
		otelmetrics.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrKind.String(j.info.Kind)))

		s.lk.Lock()
		j.fired++
		j.lastErr = err
		if j.info.Count > 0 && j.fired >= j.info.Count {
			j.finished = true
		}
		finished := j.finished
		s.lk.Unlock()

		if err != nil {
			log.Warnw("task run failed", "task", j.info.Name, "error", err)
		}
		if finished {
			log.Infow("task finished", "task", j.info.Name, "runs", j.info.Count)
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("task panicked", "task", j.info.Name, "panic", r)
			err = xerrors.Errorf("task %s panicked: %v", j.info.Name, r)
		}
	}()
	return j.runner.Run(ctx, j.info)
}

// Reschedule restarts the job with the task info currently in the
// repository, keeping its paused mode.
func (s *Scheduler) Reschedule(ctx context.Context, name string) error {
	info, err := s.repo.GetTask(ctx, name)
	if err != nil {
		return err
	}

	s.lk.Lock()
	j, ok := s.jobs[name]
	paused := ok && j.paused
	s.lk.Unlock()

	if ok {
		s.stopJob(name, j)
	} else if paused, err = s.repo.IsPaused(ctx, name); err != nil {
		return err
	}
	metrics.RecordLocalAction(ctx, "reschedule")
	return s.start(info, paused)
}

// Pause stops firing the job. Pausing an unknown task does nothing.
func (s *Scheduler) Pause(ctx context.Context, name string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		log.Debugw("pause of unscheduled task", "task", name)
		return nil
	}
	j.paused = true
	metrics.RecordLocalAction(ctx, "pause")
	return nil
}

// Resume continues firing a paused job.
func (s *Scheduler) Resume(ctx context.Context, name string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return xerrors.Errorf("resuming %s: %w", name, ErrNotScheduled)
	}
	j.paused = false
	metrics.RecordLocalAction(ctx, "resume")
	return nil
}

// Delete stops the job and removes the task from the repository. It
// reports whether a job was scheduled.
func (s *Scheduler) Delete(ctx context.Context, name string) (bool, error) {
	s.lk.Lock()
	j, ok := s.jobs[name]
	s.lk.Unlock()

	if ok {
		s.stopJob(name, j)
	}
	metrics.RecordLocalAction(ctx, "delete")
	if err := s.repo.DeleteTask(ctx, name); err != nil {
		return ok, err
	}
	return ok, nil
}

func (s *Scheduler) stopJob(name string, j *job) {
	j.cancel()
	<-j.done

	s.lk.Lock()
	if s.jobs[name] == j {
		delete(s.jobs, name)
	}
	s.lk.Unlock()
}

func (s *Scheduler) IsScheduled(name string) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, ok := s.jobs[name]
	return ok
}

func (s *Scheduler) State(name string) LocalState {
	s.lk.Lock()
	defer s.lk.Unlock()
	j, ok := s.jobs[name]
	switch {
	case !ok:
		return StateNone
	case j.finished:
		return StateFinished
	case j.paused:
		return StatePaused
	case j.lastErr != nil:
		return StateError
	default:
		return StateRunning
	}
}

// Runs returns how many times the job fired.
func (s *Scheduler) Runs(name string) int {
	s.lk.Lock()
	defer s.lk.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j.fired
	}
	return 0
}

// Scheduled lists the names of all scheduled jobs.
func (s *Scheduler) Scheduled() []string {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// Stop cancels every job and waits for running fires to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
