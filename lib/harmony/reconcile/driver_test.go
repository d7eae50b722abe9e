package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
	"github.com/filecoin-project/taskcoord/lib/harmony/localsched"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskorch"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskstore"
)

type fakeMembership struct {
	self   string
	leader bool

	lk   sync.Mutex
	live []string
}

func (m *fakeMembership) LocalNodeID() string { return m.self }

func (m *fakeMembership) IsLeader(context.Context) (bool, error) { return m.leader, nil }

func (m *fakeMembership) LiveNodes(context.Context) ([]string, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return append([]string(nil), m.live...), nil
}

func (m *fakeMembership) setLive(live ...string) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.live = live
}

type coordinatedCfg struct{}

func (coordinatedCfg) CoordinationEnabled() bool     { return true }
func (coordinatedCfg) PinnedServers(string) []string { return nil }

type node struct {
	id      string
	sched   *localsched.Scheduler
	orch    *taskorch.Orchestrator
	members *fakeMembership
	driver  *Driver
}

func newDB(t *testing.T) *harmonydb.DB {
	db, err := harmonydb.NewSqlite(filepath.Join(t.TempDir(), "cluster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newStore(t *testing.T) *taskstore.RDBMSStore {
	s, err := taskstore.NewRDBMSStore(context.Background(), newDB(t))
	require.NoError(t, err)
	return s
}

func newNode(t *testing.T, id string, leader bool, store taskstore.TaskStore, tasks ...string) *node {
	ctx := context.Background()
	repo := localsched.NewRepository(dssync.MutexWrap(datastore.NewMapDatastore()))
	clk := clock.NewMock()
	sched := localsched.New(localsched.DefaultRegistry(), repo, clk)
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	orch := taskorch.New(id, store, sched, repo, coordinatedCfg{})
	for _, name := range tasks {
		require.NoError(t, orch.RegisterTask(ctx, localsched.TaskInfo{Name: name, Kind: localsched.KindNoop, Interval: time.Minute}))
		require.NoError(t, orch.HandleTask(ctx, name))
	}

	members := &fakeMembership{self: id, leader: leader}
	resolver, err := NewResolver(ResolverRoundRobin)
	require.NoError(t, err)
	d, err := NewDriver(store, orch, members, resolver, clk, Options{Interval: time.Second, CleanEvery: 1, ReleaseOnStop: true})
	require.NoError(t, err)

	return &node{id: id, sched: sched, orch: orch, members: members, driver: d}
}

func requireOwned(t *testing.T, store taskstore.TaskStore, want map[string]string) {
	t.Helper()
	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	got := map[string]string{}
	for _, task := range all {
		got[task.Name] = task.OwnerNodeID
	}
	require.Equal(t, want, got)
}

func requireState(t *testing.T, store taskstore.TaskStore, name string, want taskstore.State) {
	t.Helper()
	st, err := store.GetState(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, want, st, name)
}

func TestLeaderAssignsAndOwnersRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tasks := []string{"t1", "t2", "t3", "t4"}
	a := newNode(t, "A", true, store, tasks...)
	b := newNode(t, "B", false, store, tasks...)
	a.members.setLive("A", "B")
	b.members.setLive("A", "B")

	// only the leader resolves
	require.NoError(t, b.driver.RunOnce(ctx))
	unassigned, err := store.ListUnassignedIncomplete(ctx)
	require.NoError(t, err)
	require.Equal(t, tasks, unassigned)

	require.NoError(t, a.driver.RunOnce(ctx))
	requireOwned(t, store, map[string]string{"t1": "A", "t2": "B", "t3": "A", "t4": "B"})
	requireState(t, store, "t1", taskstore.StateRunning)
	requireState(t, store, "t2", taskstore.StateNone)

	require.NoError(t, b.driver.RunOnce(ctx))
	for _, name := range tasks {
		requireState(t, store, name, taskstore.StateRunning)
	}
	for _, name := range []string{"t1", "t3"} {
		require.True(t, a.orch.IsRunningLocally(name))
		require.False(t, b.orch.IsRunningLocally(name))
	}
	for _, name := range []string{"t2", "t4"} {
		require.True(t, b.orch.IsRunningLocally(name))
		require.False(t, a.orch.IsRunningLocally(name))
	}
}

func TestDeadNodeTasksMoveToLiveNode(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newNode(t, "A", true, store, "t1", "t2")
	b := newNode(t, "B", false, store, "t1", "t2")
	a.members.setLive("A", "B")

	require.NoError(t, a.driver.RunOnce(ctx))
	require.NoError(t, b.driver.RunOnce(ctx))
	requireOwned(t, store, map[string]string{"t1": "A", "t2": "B"})
	require.True(t, b.orch.IsRunningLocally("t2"))

	// B stops heartbeating
	a.members.setLive("A")
	require.NoError(t, a.driver.RunOnce(ctx))

	requireOwned(t, store, map[string]string{"t1": "A", "t2": "A"})
	requireState(t, store, "t2", taskstore.StateRunning)
	require.True(t, a.orch.IsRunningLocally("t2"))

	// B comes back, sees it lost t2 and stops it
	require.NoError(t, b.driver.RunOnce(ctx))
	require.False(t, b.orch.IsRunningLocally("t2"))
	require.Equal(t, localsched.StatePaused, b.sched.State("t2"))
}

func TestCleanReleasesTasksOfUnknownOwners(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newNode(t, "A", true, store, "t1")
	a.members.setLive("A")

	require.NoError(t, store.AssignAndDemote(ctx, map[string]string{"t1": "ghost"}))
	require.NoError(t, store.SetState(ctx, []string{"t1"}, taskstore.StateRunning))

	require.NoError(t, a.driver.RunOnce(ctx))
	requireOwned(t, store, map[string]string{"t1": "A"})
	requireState(t, store, "t1", taskstore.StateRunning)
}

func TestPauseAndResumeThroughStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newNode(t, "A", true, store, "t1")
	b := newNode(t, "B", false, store, "t1")
	a.members.setLive("A")

	require.NoError(t, a.driver.RunOnce(ctx))
	require.True(t, a.orch.IsRunningLocally("t1"))

	// the pause request arrives on the node which doesn't run the task
	require.NoError(t, b.orch.HandleTaskPause(ctx, "t1"))
	requireState(t, store, "t1", taskstore.StateDeactivated)

	require.NoError(t, a.driver.RunOnce(ctx))
	requireState(t, store, "t1", taskstore.StatePaused)
	require.Equal(t, localsched.StatePaused, a.sched.State("t1"))

	// further passes leave it paused
	require.NoError(t, a.driver.RunOnce(ctx))
	requireState(t, store, "t1", taskstore.StatePaused)

	require.NoError(t, b.orch.HandleTaskResume(ctx, "t1"))
	requireState(t, store, "t1", taskstore.StateActivated)

	require.NoError(t, a.driver.RunOnce(ctx))
	requireState(t, store, "t1", taskstore.StateRunning)
	require.Equal(t, localsched.StateRunning, a.sched.State("t1"))
}

func TestStartAndStopReleaseOwnTasks(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newNode(t, "A", true, store, "t1")
	a.members.setLive("A")

	// left over by a previous run of A
	require.NoError(t, store.AssignAndDemote(ctx, map[string]string{"t1": "A"}))
	require.NoError(t, store.SetState(ctx, []string{"t1"}, taskstore.StateRunning))

	require.NoError(t, a.driver.Start(ctx))
	requireOwned(t, store, map[string]string{"t1": ""})
	requireState(t, store, "t1", taskstore.StateNone)

	require.NoError(t, a.driver.RunOnce(ctx))
	require.True(t, a.orch.IsRunningLocally("t1"))

	require.NoError(t, a.driver.Stop(ctx))
	require.False(t, a.orch.IsRunningLocally("t1"))
	requireOwned(t, store, map[string]string{"t1": ""})
	requireState(t, store, "t1", taskstore.StateNone)
}

func TestNewDriverChecksNodeID(t *testing.T) {
	store := newStore(t)
	a := newNode(t, "A", true, store)
	_, err := NewDriver(store, a.orch, NewStaticMembership("B", false, nil), &roundRobin{}, clock.NewMock(), Options{Interval: time.Second})
	require.Error(t, err)
}

func TestResolvers(t *testing.T) {
	_, err := NewResolver("random")
	require.Error(t, err)
	require.Equal(t, []string{ResolverLeastLoaded, ResolverRoundRobin}, Resolvers())

	rr, err := NewResolver(ResolverRoundRobin)
	require.NoError(t, err)
	live := []string{"A", "B", "C"}
	var got []string
	for i := 0; i < 4; i++ {
		n, ok := rr.Resolve("t", live, nil)
		require.True(t, ok)
		got = append(got, n)
	}
	require.Equal(t, []string{"A", "B", "C", "A"}, got)
	_, ok := rr.Resolve("t", nil, nil)
	require.False(t, ok)

	ll, err := NewResolver(ResolverLeastLoaded)
	require.NoError(t, err)
	n, ok := ll.Resolve("t", live, map[string]int{"A": 3, "B": 1, "C": 1})
	require.True(t, ok)
	require.Equal(t, "B", n)
}

func TestStaticMembership(t *testing.T) {
	ctx := context.Background()
	m := NewStaticMembership("B", true, []string{"C", "A", "C"})
	live, err := m.LiveNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, live)
	leader, err := m.IsLeader(ctx)
	require.NoError(t, err)
	require.True(t, leader)
}

func TestMachines(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	clk := clock.NewMock()
	clk.Set(time.Now())

	a, err := RegisterMachine(ctx, db, clk, "A", "127.0.0.1:1", time.Second, time.Minute)
	require.NoError(t, err)
	b, err := RegisterMachine(ctx, db, clk, "B", "127.0.0.1:2", time.Second, time.Minute)
	require.NoError(t, err)

	_, err = db.Exec(ctx, `INSERT INTO coordination_nodes (node_id, host_and_port, last_contact) VALUES ($1, $2, $3)`,
		"0-old", "127.0.0.1:3", clk.Now().Add(-2*time.Minute).UnixMilli())
	require.NoError(t, err)

	live, err := a.LiveNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, live)

	leader, err := a.IsLeader(ctx)
	require.NoError(t, err)
	require.True(t, leader)
	leader, err = b.IsLeader(ctx)
	require.NoError(t, err)
	require.False(t, leader)

	require.Equal(t, 1, CleanupMachines(ctx, db, clk.Now().Add(-time.Minute)))

	require.NoError(t, a.Shutdown(ctx))
	leader, err = b.IsLeader(ctx)
	require.NoError(t, err)
	require.True(t, leader)
	require.NoError(t, b.Shutdown(ctx))
}
