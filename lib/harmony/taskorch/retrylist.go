package taskorch

import (
	"sync"

	"github.com/samber/lo"
)

// retryList is an ordered set of task names waiting for a store write to
// be retried.
type retryList struct {
	name string

	lk    sync.Mutex
	names []string
}

func newRetryList(name string) *retryList {
	return &retryList{name: name}
}

func (l *retryList) add(name string) {
	l.lk.Lock()
	defer l.lk.Unlock()
	if !lo.Contains(l.names, name) {
		l.names = append(l.names, name)
	}
}

// remove reports whether name was queued.
func (l *retryList) remove(name string) bool {
	l.lk.Lock()
	defer l.lk.Unlock()
	if !lo.Contains(l.names, name) {
		return false
	}
	l.names = lo.Without(l.names, name)
	return true
}

func (l *retryList) contains(name string) bool {
	l.lk.Lock()
	defer l.lk.Unlock()
	return lo.Contains(l.names, name)
}

func (l *retryList) list() []string {
	l.lk.Lock()
	defer l.lk.Unlock()
	return append([]string(nil), l.names...)
}

func (l *retryList) len() int {
	l.lk.Lock()
	defer l.lk.Unlock()
	return len(l.names)
}
