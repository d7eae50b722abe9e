package reconcile

import (
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// Resolver picks the node an unassigned task should be claimed for. load
// holds the number of tasks each live node owns and is updated by the
// caller after every successful claim.
type Resolver interface {
	Resolve(task string, live []string, load map[string]int) (string, bool)
}

const (
	ResolverRoundRobin  = "round-robin"
	ResolverLeastLoaded = "least-loaded"
)

var resolverFactories = map[string]func() Resolver{
	ResolverRoundRobin:  func() Resolver { return &roundRobin{} },
	ResolverLeastLoaded: func() Resolver { return leastLoaded{} },
}

// NewResolver returns the resolver registered under name.
func NewResolver(name string) (Resolver, error) {
	f, ok := resolverFactories[name]
	if !ok {
		return nil, xerrors.Errorf("unknown task resolver %q", name)
	}
	return f(), nil
}

// Resolvers lists the known resolver names.
func Resolvers() []string {
	out := make([]string, 0, len(resolverFactories))
	for name := range resolverFactories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type roundRobin struct {
	lk   sync.Mutex
	next int
}

func (r *roundRobin) Resolve(_ string, live []string, _ map[string]int) (string, bool) {
	if len(live) == 0 {
		return "", false
	}
	r.lk.Lock()
	defer r.lk.Unlock()
	node := live[r.next%len(live)]
	r.next++
	return node, true
}

type leastLoaded struct{}

func (leastLoaded) Resolve(_ string, live []string, load map[string]int) (string, bool) {
	if len(live) == 0 {
		return "", false
	}
	best := live[0]
	for _, n := range live[1:] {
		if load[n] < load[best] || (load[n] == load[best] && n < best) {
			best = n
		}
	}
	return best, true
}
