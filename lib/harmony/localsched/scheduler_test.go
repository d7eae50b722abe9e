package localsched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"
)

const interval = time.Minute

type harness struct {
	clk   *clock.Mock
	repo  *Repository
	sched *Scheduler
	runs  *atomic.Int64
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		clk:  clock.NewMock(),
		repo: newMemRepo(),
		runs: new(atomic.Int64),
	}
	reg := DefaultRegistry()
	require.NoError(t, reg.Register("count", func(map[string]string) (Runner, error) {
		return RunnerFunc(func(context.Context, TaskInfo) error {
			h.runs.Add(1)
			return nil
		}), nil
	}))
	require.NoError(t, reg.Register("explode", func(map[string]string) (Runner, error) {
		return RunnerFunc(func(context.Context, TaskInfo) error {
			panic("boom")
		}), nil
	}))
	h.sched = New(reg, h.repo, h.clk)
	t.Cleanup(func() { _ = h.sched.Stop(context.Background()) })
	return h
}

func (h *harness) add(t *testing.T, info TaskInfo) {
	if info.Interval == 0 {
		info.Interval = interval
	}
	require.NoError(t, h.repo.AddTask(context.Background(), info))
}

// tick advances the clock one interval and waits for the job to see it.
func (h *harness) tick(t *testing.T, name string, wantRuns int) {
	h.clk.Add(interval)
	require.Eventually(t, func() bool {
		return h.sched.Runs(name) == wantRuns
	}, 5*time.Second, 5*time.Millisecond)
}

func TestScheduleFiresOnInterval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "a", Kind: "count"})

	require.NoError(t, h.sched.Schedule(ctx, "a"))
	require.NoError(t, h.sched.Schedule(ctx, "a"))
	require.True(t, h.sched.IsScheduled("a"))
	require.Equal(t, StateRunning, h.sched.State("a"))

	h.tick(t, "a", 1)
	h.tick(t, "a", 2)
	require.EqualValues(t, 2, h.runs.Load())
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "a", Kind: "count"})
	require.NoError(t, h.sched.Schedule(ctx, "a"))
	h.tick(t, "a", 1)

	require.NoError(t, h.sched.Pause(ctx, "a"))
	require.Equal(t, StatePaused, h.sched.State("a"))
	h.clk.Add(interval)
	require.Never(t, func() bool { return h.sched.Runs("a") > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, h.sched.Resume(ctx, "a"))
	require.Equal(t, StateRunning, h.sched.State("a"))
	h.tick(t, "a", 2)

	require.NoError(t, h.sched.Pause(ctx, "unknown"))
	require.ErrorIs(t, h.sched.Resume(ctx, "unknown"), ErrNotScheduled)
}

func TestScheduleHonoursPausedFlag(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "a", Kind: "count"})
	require.NoError(t, h.repo.SetPaused(ctx, "a", true))

	require.NoError(t, h.sched.Schedule(ctx, "a"))
	require.Equal(t, StatePaused, h.sched.State("a"))
}

func TestScheduleErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.ErrorIs(t, h.sched.Schedule(ctx, "missing"), ErrTaskNotFound)

	h.add(t, TaskInfo{Name: "b", Kind: "esoteric"})
	require.ErrorIs(t, h.sched.Schedule(ctx, "b"), ErrTaskTypeUnavailable)
	require.False(t, h.sched.IsScheduled("b"))
	require.False(t, h.sched.CanHost("esoteric"))
	require.True(t, h.sched.CanHost(KindLog))

	h.add(t, TaskInfo{Name: "c", Kind: KindHTTPPing})
	require.Error(t, h.sched.Schedule(ctx, "c"))
	require.Equal(t, StateNone, h.sched.State("c"))
}

func TestRepeatCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "a", Kind: "count", Count: 2})
	require.NoError(t, h.sched.Schedule(ctx, "a"))

	h.tick(t, "a", 1)
	h.tick(t, "a", 2)
	require.Eventually(t, func() bool { return h.sched.State("a") == StateFinished }, 5*time.Second, 5*time.Millisecond)

	h.clk.Add(interval)
	require.Never(t, func() bool { return h.runs.Load() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPanickingTaskKeepsRunning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "x", Kind: "explode"})
	require.NoError(t, h.sched.Schedule(ctx, "x"))

	h.tick(t, "x", 1)
	require.Equal(t, StateError, h.sched.State("x"))
	h.tick(t, "x", 2)
}

func TestDeleteAndReschedule(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, TaskInfo{Name: "a", Kind: "count"})
	require.NoError(t, h.sched.Schedule(ctx, "a"))
	require.NoError(t, h.sched.Pause(ctx, "a"))

	require.NoError(t, h.sched.Reschedule(ctx, "a"))
	require.True(t, h.sched.IsScheduled("a"))
	require.Equal(t, StatePaused, h.sched.State("a"))

	deleted, err := h.sched.Delete(ctx, "a")
	require.NoError(t, err)
	require.True(t, deleted)
	require.False(t, h.sched.IsScheduled("a"))

	_, err = h.repo.GetTask(ctx, "a")
	require.ErrorIs(t, err, ErrTaskNotFound)

	deleted, err = h.sched.Delete(ctx, "a")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.Equal(t, []string{KindHTTPPing, KindLog, KindNoop}, r.Kinds())
	require.Error(t, r.Register(KindLog, logFactory))
	require.Error(t, r.Register("", logFactory))

	f, ok := r.Lookup(KindLog)
	require.True(t, ok)
	run, err := f(nil)
	require.NoError(t, err)
	require.NoError(t, run.Run(context.Background(), TaskInfo{Name: "a"}))
}
