package localsched

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"
)

// TaskInfo is everything the local scheduler needs to run a task.
type TaskInfo struct {
	Name          string            `json:"name"`
	Kind          string            `json:"kind"`
	Interval      time.Duration     `json:"interval"`
	Count         int               `json:"count,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	PinnedServers []string          `json:"pinnedServers,omitempty"`
}

var (
	infoPrefix   = datastore.NewKey("/info")
	pausedPrefix = datastore.NewKey("/paused")
)

// Repository persists task infos and the per-task paused flag of this node,
// so locally paused tasks stay paused across restarts.
type Repository struct {
	ds datastore.Batching
}

func NewRepository(ds datastore.Batching) *Repository {
	return &Repository{ds: namespace.Wrap(ds, datastore.NewKey("/localsched"))}
}

func infoKey(name string) datastore.Key {
	return infoPrefix.ChildString(url.PathEscape(name))
}

func pausedKey(name string) datastore.Key {
	return pausedPrefix.ChildString(url.PathEscape(name))
}

func (r *Repository) AddTask(ctx context.Context, info TaskInfo) error {
	if info.Name == "" {
		return xerrors.Errorf("task info without a name")
	}
	b, err := json.Marshal(info)
	if err != nil {
		return xerrors.Errorf("marshaling task info: %w", err)
	}
	if err := r.ds.Put(ctx, infoKey(info.Name), b); err != nil {
		return xerrors.Errorf("storing task %s: %w", info.Name, err)
	}
	return nil
}

// GetTask returns ErrTaskNotFound for unknown tasks.
func (r *Repository) GetTask(ctx context.Context, name string) (TaskInfo, error) {
	b, err := r.ds.Get(ctx, infoKey(name))
	if errors.Is(err, datastore.ErrNotFound) {
		return TaskInfo{}, ErrTaskNotFound
	}
	if err != nil {
		return TaskInfo{}, xerrors.Errorf("loading task %s: %w", name, err)
	}
	var info TaskInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return TaskInfo{}, xerrors.Errorf("unmarshaling task %s: %w", name, err)
	}
	return info, nil
}

func (r *Repository) HasTask(ctx context.Context, name string) (bool, error) {
	return r.ds.Has(ctx, infoKey(name))
}

// DeleteTask removes the task info and its paused flag.
func (r *Repository) DeleteTask(ctx context.Context, name string) error {
	b, err := r.ds.Batch(ctx)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, infoKey(name)); err != nil {
		return err
	}
	if err := b.Delete(ctx, pausedKey(name)); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return xerrors.Errorf("deleting task %s: %w", name, err)
	}
	return nil
}

func (r *Repository) AllTasks(ctx context.Context) ([]TaskInfo, error) {
	res, err := r.ds.Query(ctx, query.Query{Prefix: infoPrefix.String()})
	if err != nil {
		return nil, xerrors.Errorf("querying tasks: %w", err)
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, xerrors.Errorf("reading tasks: %w", err)
	}

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		var info TaskInfo
		if err := json.Unmarshal(e.Value, &info); err != nil {
			return nil, xerrors.Errorf("unmarshaling %s: %w", strings.TrimPrefix(e.Key, infoPrefix.String()), err)
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Repository) SetPaused(ctx context.Context, name string, paused bool) error {
	if !paused {
		if err := r.ds.Delete(ctx, pausedKey(name)); err != nil {
			return xerrors.Errorf("clearing paused flag of %s: %w", name, err)
		}
		return nil
	}
	if err := r.ds.Put(ctx, pausedKey(name), []byte{1}); err != nil {
		return xerrors.Errorf("setting paused flag of %s: %w", name, err)
	}
	return nil
}

func (r *Repository) IsPaused(ctx context.Context, name string) (bool, error) {
	return r.ds.Has(ctx, pausedKey(name))
}
