package localsched

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// Runner is one execution of a task kind. Run is called on every trigger
// fire with the job's context, which is cancelled when the job is stopped.
type Runner interface {
	Run(ctx context.Context, info TaskInfo) error
}

type RunnerFunc func(ctx context.Context, info TaskInfo) error

func (f RunnerFunc) Run(ctx context.Context, info TaskInfo) error {
	return f(ctx, info)
}

// Factory builds a Runner from the task properties.
type Factory func(props map[string]string) (Runner, error)

// Registry maps task kinds to the factories of their implementations. Kinds
// are registered at startup; a node can only host tasks whose kind it knows.
type Registry struct {
	lk        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry knows the built in kinds: "noop", "log" and "http-ping".
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(KindNoop, noopFactory)
	_ = r.Register(KindLog, logFactory)
	_ = r.Register(KindHTTPPing, httpPingFactory)
	return r
}

func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return xerrors.Errorf("registering task kind %q: empty kind or factory", kind)
	}
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, ok := r.factories[kind]; ok {
		return xerrors.Errorf("task kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.lk.RLock()
	defer r.lk.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
