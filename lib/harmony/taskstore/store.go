// Package taskstore keeps the cluster-wide ownership and lifecycle state of
// coordinated tasks in one shared SQL table. The table is the only medium the
// nodes of a cluster coordinate through: every write is a single statement,
// or a single batch, guarded by the conditions it needs, so concurrent
// writers never overwrite each other blindly.
package taskstore

import (
	"context"
	"errors"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

//go:generate go run github.com/golang/mock/mockgen -destination=mocks/mock_taskstore.go -package=mocks . TaskStore

var log = logging.Logger("taskstore")

var (
	// ErrStore matches every error caused by the underlying database.
	ErrStore = errors.New("task store error")
	// ErrTaskNotFound is returned by GetState for unknown task names.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidRecord is returned when a stored row holds a state this
	// version does not know. It is not a store error.
	ErrInvalidRecord = errors.New("invalid task record")
)

// StoreError wraps a database failure of a single store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "task store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the database.
func IsStoreError(err error) bool {
	return xerrors.Is(err, ErrStore)
}

// TaskStore is the set of atomic operations over coordinated task records.
// Operations taking a list of names are no-ops for an empty list.
type TaskStore interface {
	// AddTaskIfNotExist registers an unassigned task in state NONE. Adding a
	// task that already exists is not an error.
	AddTaskIfNotExist(ctx context.Context, name string) error
	// AssignAndDemote sets the owner of every task in the name to node map
	// and demotes its state. Completed tasks are left alone.
	AssignAndDemote(ctx context.Context, assignments map[string]string) error
	// ClaimUnassigned assigns the task to node only if nobody owns it. It
	// reports whether the claim won.
	ClaimUnassigned(ctx context.Context, name, node string) (bool, error)
	// ReleaseByNames clears the owner of the tasks and demotes their state.
	ReleaseByNames(ctx context.Context, names []string) error
	// ReleaseByNode clears the owner of every incomplete task owned by node
	// and demotes its state.
	ReleaseByNode(ctx context.Context, node string) error
	// SetState overwrites the state of the tasks unconditionally.
	SetState(ctx context.Context, names []string, state State) error
	// SetStateForOwner updates the state only if the task is owned by
	// expectedOwner. It returns false, not an error, on an owner mismatch.
	SetStateForOwner(ctx context.Context, name string, state State, expectedOwner string) (bool, error)
	// Deactivate moves the task to DEACTIVATED unless it is PAUSED.
	Deactivate(ctx context.Context, name string) error
	// Activate moves the task to ACTIVATED unless it is RUNNING.
	Activate(ctx context.Context, name string) error
	// GetState returns ErrTaskNotFound for an unknown task.
	GetState(ctx context.Context, name string) (State, error)
	DeleteByNames(ctx context.Context, names []string) error
	// DeleteByNode deletes the tasks owned by node except the ones whose
	// state outlives the node: COMPLETED, ACTIVATED and DEACTIVATED.
	DeleteByNode(ctx context.Context, node string) error

	ListAll(ctx context.Context) ([]CoordinatedTask, error)
	// ListAssignedIncomplete lists owned tasks that are not COMPLETED.
	ListAssignedIncomplete(ctx context.Context) ([]CoordinatedTask, error)
	// ListUnassignedIncomplete lists the names of unowned tasks that are
	// not COMPLETED.
	ListUnassignedIncomplete(ctx context.Context) ([]string, error)
	ListByOwnerAndState(ctx context.Context, node string, state State) ([]string, error)
}
