package localsched

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/stretchr/testify/require"
)

func newMemRepo() *Repository {
	return NewRepository(dssync.MutexWrap(datastore.NewMapDatastore()))
}

func TestRepositoryTasks(t *testing.T) {
	ctx := context.Background()
	r := newMemRepo()

	_, err := r.GetTask(ctx, "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)

	a := TaskInfo{Name: "a", Kind: KindLog, Interval: time.Second, Properties: map[string]string{"message": "hi"}}
	b := TaskInfo{Name: "proxy/b", Kind: KindNoop, Interval: time.Minute, Count: 3, PinnedServers: []string{"n1"}}
	require.NoError(t, r.AddTask(ctx, a))
	require.NoError(t, r.AddTask(ctx, b))
	require.Error(t, r.AddTask(ctx, TaskInfo{}))

	got, err := r.GetTask(ctx, "proxy/b")
	require.NoError(t, err)
	require.Equal(t, b, got)

	all, err := r.AllTasks(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []TaskInfo{a, b}, all)

	has, err := r.HasTask(ctx, "a")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, r.SetPaused(ctx, "a", true))
	paused, err := r.IsPaused(ctx, "a")
	require.NoError(t, err)
	require.True(t, paused)

	// the paused flag is not a task
	all, err = r.AllTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, r.DeleteTask(ctx, "a"))
	_, err = r.GetTask(ctx, "a")
	require.ErrorIs(t, err, ErrTaskNotFound)
	paused, err = r.IsPaused(ctx, "a")
	require.NoError(t, err)
	require.False(t, paused)
}

func TestRepositoryPausedFlagSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ds, err := levelds.NewDatastore(dir, nil)
	require.NoError(t, err)
	r := NewRepository(ds)
	require.NoError(t, r.AddTask(ctx, TaskInfo{Name: "a", Kind: KindNoop, Interval: time.Second}))
	require.NoError(t, r.SetPaused(ctx, "a", true))
	require.NoError(t, ds.Close())

	ds, err = levelds.NewDatastore(dir, nil)
	require.NoError(t, err)
	defer ds.Close() //nolint:errcheck
	r = NewRepository(ds)

	paused, err := r.IsPaused(ctx, "a")
	require.NoError(t, err)
	require.True(t, paused)

	require.NoError(t, r.SetPaused(ctx, "a", false))
	paused, err = r.IsPaused(ctx, "a")
	require.NoError(t, err)
	require.False(t, paused)

	// clearing twice is fine
	require.NoError(t, r.SetPaused(ctx, "a", false))
}
