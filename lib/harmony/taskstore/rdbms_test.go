package taskstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
)

func newTestStore(t *testing.T) (*RDBMSStore, *harmonydb.DB) {
	db, err := harmonydb.NewSqlite(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewRDBMSStore(context.Background(), db)
	require.NoError(t, err)
	return s, db
}

// seed registers name, assigns it to owner (if any) and forces state.
func seed(t *testing.T, s *RDBMSStore, name, owner string, state State) {
	ctx := context.Background()
	require.NoError(t, s.AddTaskIfNotExist(ctx, name))
	if owner != "" {
		require.NoError(t, s.AssignAndDemote(ctx, map[string]string{name: owner}))
	}
	require.NoError(t, s.SetState(ctx, []string{name}, state))
}

func taskByName(t *testing.T, s *RDBMSStore, name string) CoordinatedTask {
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	for _, task := range all {
		if task.Name == name {
			return task
		}
	}
	t.Fatalf("task %s not found", name)
	return CoordinatedTask{}
}

func TestAddTaskIfNotExistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddTaskIfNotExist(ctx, "X"))
	require.NoError(t, s.AddTaskIfNotExist(ctx, "X"))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []CoordinatedTask{{Name: "X", State: StateNone}}, all)
}

func TestNewRDBMSStoreKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)
	seed(t, s, "X", "n1", StateRunning)

	s2, err := NewRDBMSStore(ctx, db)
	require.NoError(t, err)
	st, err := s2.GetState(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, StateRunning, st)
}

func TestDemotionMatchesStateDemote(t *testing.T) {
	ctx := context.Background()

	for _, st := range allStates {
		t.Run(string(st), func(t *testing.T) {
			s, _ := newTestStore(t)

			seed(t, s, "released", "n1", st)
			seed(t, s, "by-node", "n2", st)
			seed(t, s, "reassigned", "n1", st)

			require.NoError(t, s.ReleaseByNames(ctx, []string{"released"}))
			require.NoError(t, s.ReleaseByNode(ctx, "n2"))
			require.NoError(t, s.AssignAndDemote(ctx, map[string]string{"reassigned": "n3"}))

			want := st.Demote()
			wantOwner := ""
			if st.IsTerminal() {
				want = st
			}

			for _, name := range []string{"released", "by-node"} {
				task := taskByName(t, s, name)
				require.Equal(t, want, task.State, name)
				if !st.IsTerminal() {
					require.Equal(t, wantOwner, task.OwnerNodeID, name)
				}
			}

			task := taskByName(t, s, "reassigned")
			require.Equal(t, want, task.State)
			if st.IsTerminal() {
				require.Equal(t, "n1", task.OwnerNodeID)
			} else {
				require.Equal(t, "n3", task.OwnerNodeID)
			}
		})
	}
}

func TestReleaseByNode(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	seed(t, s, "running", "A", StateRunning)
	seed(t, s, "deactivated", "A", StateDeactivated)
	seed(t, s, "done", "A", StateCompleted)
	seed(t, s, "other", "B", StateRunning)

	require.NoError(t, s.ReleaseByNode(ctx, "A"))

	require.Equal(t, CoordinatedTask{Name: "running", State: StateNone}, taskByName(t, s, "running"))
	require.Equal(t, CoordinatedTask{Name: "deactivated", State: StatePaused}, taskByName(t, s, "deactivated"))
	require.Equal(t, CoordinatedTask{Name: "done", OwnerNodeID: "A", State: StateCompleted}, taskByName(t, s, "done"))
	require.Equal(t, CoordinatedTask{Name: "other", OwnerNodeID: "B", State: StateRunning}, taskByName(t, s, "other"))
}

func TestSetStateForOwner(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seed(t, s, "X", "nodeB", StateNone)

	ok, err := s.SetStateForOwner(ctx, "X", StateRunning, "nodeA")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, CoordinatedTask{Name: "X", OwnerNodeID: "nodeB", State: StateNone}, taskByName(t, s, "X"))

	ok, err = s.SetStateForOwner(ctx, "X", StateRunning, "nodeB")
	require.NoError(t, err)
	require.True(t, ok)
	st, err := s.GetState(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, StateRunning, st)

	ok, err = s.SetStateForOwner(ctx, "missing", StateRunning, "nodeB")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.SetStateForOwner(ctx, "X", State("BOGUS"), "nodeB")
	require.Error(t, err)
}

func TestCompletedIsNeverIncomplete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	seed(t, s, "done-assigned", "A", StateCompleted)
	seed(t, s, "done-free", "", StateCompleted)
	seed(t, s, "free", "", StateNone)
	seed(t, s, "owned", "A", StateRunning)

	unassigned, err := s.ListUnassignedIncomplete(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"free"}, unassigned)

	assigned, err := s.ListAssignedIncomplete(ctx)
	require.NoError(t, err)
	require.Equal(t, []CoordinatedTask{{Name: "owned", OwnerNodeID: "A", State: StateRunning}}, assigned)

	// completed tasks can't be claimed or reassigned either
	ok, err := s.ClaimUnassigned(ctx, "done-free", "B")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.AssignAndDemote(ctx, map[string]string{"done-assigned": "B"}))
	require.Equal(t, "A", taskByName(t, s, "done-assigned").OwnerNodeID)
}

func TestDeactivateAndActivateGuards(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	seed(t, s, "paused", "A", StatePaused)
	seed(t, s, "running", "A", StateRunning)
	seed(t, s, "none", "A", StateNone)
	seed(t, s, "done", "A", StateCompleted)

	for _, name := range []string{"paused", "running", "none", "done"} {
		require.NoError(t, s.Deactivate(ctx, name))
	}
	requireState(t, s, "paused", StatePaused)
	requireState(t, s, "running", StateDeactivated)
	requireState(t, s, "none", StateDeactivated)
	requireState(t, s, "done", StateCompleted)

	require.NoError(t, s.SetState(ctx, []string{"running"}, StateRunning))
	for _, name := range []string{"paused", "running", "none", "done"} {
		require.NoError(t, s.Activate(ctx, name))
	}
	requireState(t, s, "paused", StateActivated)
	requireState(t, s, "running", StateRunning)
	requireState(t, s, "none", StateActivated)
	requireState(t, s, "done", StateCompleted)
}

func requireState(t *testing.T, s *RDBMSStore, name string, want State) {
	t.Helper()
	st, err := s.GetState(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, want, st, name)
}

func TestGetStateNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetState(context.Background(), "nope")
	require.ErrorIs(t, err, ErrTaskNotFound)
	require.False(t, IsStoreError(err))
}

func TestDeleteByNode(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, st := range allStates {
		seed(t, s, "A-"+string(st), "A", st)
	}
	seed(t, s, "B-NONE", "B", StateNone)

	require.NoError(t, s.DeleteByNode(ctx, "A"))

	var names []string
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	for _, task := range all {
		names = append(names, task.Name)
	}
	require.ElementsMatch(t, []string{"A-ACTIVATED", "A-COMPLETED", "A-DEACTIVATED", "B-NONE"}, names)
}

func TestDeleteByNames(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seed(t, s, "a", "", StateNone)
	seed(t, s, "b", "N", StateRunning)
	seed(t, s, "c", "", StatePaused)

	require.NoError(t, s.DeleteByNames(ctx, []string{"a", "b", "b", "missing"}))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []CoordinatedTask{{Name: "c", State: StatePaused}}, all)
}

func TestClaimUnassigned(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seed(t, s, "X", "", StatePaused)

	ok, err := s.ClaimUnassigned(ctx, "X", "A")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ClaimUnassigned(ctx, "X", "B")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, CoordinatedTask{Name: "X", OwnerNodeID: "A", State: StatePaused}, taskByName(t, s, "X"))
}

func TestListByOwnerAndState(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seed(t, s, "a1", "A", StateActivated)
	seed(t, s, "a2", "A", StateActivated)
	seed(t, s, "a3", "A", StateRunning)
	seed(t, s, "b1", "B", StateActivated)

	names, err := s.ListByOwnerAndState(ctx, "A", StateActivated)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, names)

	names, err = s.ListByOwnerAndState(ctx, "C", StateActivated)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestEmptyBatchesAreNoops(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)
	require.NoError(t, db.Close())

	// a closed database proves nothing is executed
	require.NoError(t, s.AssignAndDemote(ctx, nil))
	require.NoError(t, s.ReleaseByNames(ctx, nil))
	require.NoError(t, s.SetState(ctx, []string{}, StateRunning))
	require.NoError(t, s.DeleteByNames(ctx, nil))
}

func TestDatabaseFailuresAreStoreErrors(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)
	require.NoError(t, db.Close())

	err := s.AddTaskIfNotExist(ctx, "X")
	require.ErrorIs(t, err, ErrStore)

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "add", serr.Op)

	_, err = s.GetState(ctx, "X")
	require.True(t, IsStoreError(err))

	_, err = s.ListUnassignedIncomplete(ctx)
	require.True(t, IsStoreError(err))

	err = s.AssignAndDemote(ctx, map[string]string{"X": "A"})
	require.True(t, IsStoreError(err))
}

func TestUnknownStateIsNotAStoreError(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)
	seed(t, s, "X", "n1", StateRunning)

	_, err := db.Exec(ctx, `UPDATE coordinated_tasks SET task_state = $1 WHERE task_name = $2`, "SUSPENDED", "X")
	require.NoError(t, err)

	_, err = s.ListAll(ctx)
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.False(t, IsStoreError(err))

	_, err = s.ListAssignedIncomplete(ctx)
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.False(t, IsStoreError(err))

	_, err = s.GetState(ctx, "X")
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.False(t, IsStoreError(err))
}

func TestTaskSurvivesOwnerCrash(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddTaskIfNotExist(ctx, "job1"))
	require.Equal(t, CoordinatedTask{Name: "job1", State: StateNone}, taskByName(t, s, "job1"))

	require.NoError(t, s.AssignAndDemote(ctx, map[string]string{"job1": "node1"}))
	require.Equal(t, CoordinatedTask{Name: "job1", OwnerNodeID: "node1", State: StateNone}, taskByName(t, s, "job1"))

	require.NoError(t, s.SetState(ctx, []string{"job1"}, StateRunning))
	requireState(t, s, "job1", StateRunning)

	unassigned, err := s.ListUnassignedIncomplete(ctx)
	require.NoError(t, err)
	require.Empty(t, unassigned)

	// node1 crashes
	require.NoError(t, s.ReleaseByNode(ctx, "node1"))

	require.Equal(t, CoordinatedTask{Name: "job1", State: StateNone}, taskByName(t, s, "job1"))
	unassigned, err = s.ListUnassignedIncomplete(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"job1"}, unassigned)
}
