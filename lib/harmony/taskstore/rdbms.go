package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
	"github.com/filecoin-project/taskcoord/metrics"
)

// RDBMSStore is the TaskStore backed by the coordinated_tasks table.
type RDBMSStore struct {
	db *harmonydb.DB
}

var _ TaskStore = (*RDBMSStore)(nil)

// NewRDBMSStore creates the task table if needed.
func NewRDBMSStore(ctx context.Context, db *harmonydb.DB) (*RDBMSStore, error) {
	if err := db.ExecSchema(ctx, ddls); err != nil {
		return nil, xerrors.Errorf("creating task table: %w", err)
	}
	log.Infow("task store ready", "driver", db.DriverName())
	return &RDBMSStore{db: db}, nil
}

func (s *RDBMSStore) finish(ctx context.Context, op string, start time.Time, err error) error {
	metrics.RecordStoreOp(ctx, op, start, err)
	if err != nil {
		log.Debugw("store operation failed", "op", op, "error", err)
	}
	return storeErr(op, err)
}

func (s *RDBMSStore) AddTaskIfNotExist(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { err = s.finish(ctx, "add", start, err) }(time.Now())

	_, err = s.db.Exec(ctx, stmtInsertTask, name)
	if harmonydb.IsErrUniqueContraint(err) {
		log.Debugw("task already registered", "task", name)
		return nil
	}
	return err
}

func (s *RDBMSStore) AssignAndDemote(ctx context.Context, assignments map[string]string) (err error) {
	if len(assignments) == 0 {
		return nil
	}
	defer func(start time.Time) { err = s.finish(ctx, "assign", start, err) }(time.Now())

	names := lo.Keys(assignments)
	sort.Strings(names)
	rows := lo.Map(names, func(name string, _ int) []any {
		return []any{assignments[name], name}
	})
	_, err = s.db.ExecBatch(ctx, stmtAssignTask, rows)
	return err
}

func (s *RDBMSStore) ClaimUnassigned(ctx context.Context, name, node string) (claimed bool, err error) {
	defer func(start time.Time) { err = s.finish(ctx, "claim", start, err) }(time.Now())

	n, err := s.db.Exec(ctx, stmtClaimTask, node, name)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RDBMSStore) ReleaseByNames(ctx context.Context, names []string) (err error) {
	if len(names) == 0 {
		return nil
	}
	defer func(start time.Time) { err = s.finish(ctx, "release", start, err) }(time.Now())

	_, err = s.db.ExecBatch(ctx, stmtReleaseTask, nameRows(names))
	return err
}

func (s *RDBMSStore) ReleaseByNode(ctx context.Context, node string) (err error) {
	defer func(start time.Time) { err = s.finish(ctx, "release_node", start, err) }(time.Now())

	n, err := s.db.Exec(ctx, stmtReleaseNode, node)
	if err != nil {
		return err
	}
	log.Infow("released node tasks", "node", node, "tasks", n)
	return nil
}

func (s *RDBMSStore) SetState(ctx context.Context, names []string, state State) (err error) {
	if len(names) == 0 {
		return nil
	}
	if !state.Valid() {
		return xerrors.Errorf("set state: invalid state %q", state)
	}
	defer func(start time.Time) { err = s.finish(ctx, "set_state", start, err) }(time.Now())

	rows := lo.Map(lo.Uniq(names), func(name string, _ int) []any {
		return []any{string(state), name}
	})
	_, err = s.db.ExecBatch(ctx, stmtSetState, rows)
	return err
}

func (s *RDBMSStore) SetStateForOwner(ctx context.Context, name string, state State, expectedOwner string) (updated bool, err error) {
	if !state.Valid() {
		return false, xerrors.Errorf("set state for owner: invalid state %q", state)
	}
	defer func(start time.Time) { err = s.finish(ctx, "set_state_owner", start, err) }(time.Now())

	n, err := s.db.Exec(ctx, stmtSetStateForOwner, string(state), name, expectedOwner)
	if err != nil {
		return false, err
	}
	if n == 0 {
		log.Debugw("state update rejected, owner changed", "task", name, "expected", expectedOwner, "state", state)
	}
	return n == 1, nil
}

func (s *RDBMSStore) Deactivate(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { err = s.finish(ctx, "deactivate", start, err) }(time.Now())

	_, err = s.db.Exec(ctx, stmtDeactivate, name)
	return err
}

func (s *RDBMSStore) Activate(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { err = s.finish(ctx, "activate", start, err) }(time.Now())

	_, err = s.db.Exec(ctx, stmtActivate, name)
	return err
}

func (s *RDBMSStore) GetState(ctx context.Context, name string) (State, error) {
	start := time.Now()

	var raw string
	err := s.db.QueryRow(ctx, stmtGetState, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStoreOp(ctx, "get_state", start, nil)
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", s.finish(ctx, "get_state", start, err)
	}
	metrics.RecordStoreOp(ctx, "get_state", start, nil)
	st, err := ParseState(raw)
	if err != nil {
		return "", xerrors.Errorf("task %s: %s: %w", name, err, ErrInvalidRecord)
	}
	return st, nil
}

func (s *RDBMSStore) DeleteByNames(ctx context.Context, names []string) (err error) {
	if len(names) == 0 {
		return nil
	}
	defer func(start time.Time) { err = s.finish(ctx, "delete", start, err) }(time.Now())

	_, err = s.db.ExecBatch(ctx, stmtDeleteTask, nameRows(names))
	return err
}

func (s *RDBMSStore) DeleteByNode(ctx context.Context, node string) (err error) {
	defer func(start time.Time) { err = s.finish(ctx, "delete_node", start, err) }(time.Now())

	_, err = s.db.Exec(ctx, stmtDeleteNode, node)
	return err
}

func (s *RDBMSStore) ListAll(ctx context.Context) ([]CoordinatedTask, error) {
	return s.listTasks(ctx, "list_all", stmtListAll)
}

func (s *RDBMSStore) ListAssignedIncomplete(ctx context.Context) ([]CoordinatedTask, error) {
	return s.listTasks(ctx, "list_assigned", stmtListAssignedIncomplete)
}

func (s *RDBMSStore) ListUnassignedIncomplete(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { err = s.finish(ctx, "list_unassigned", start, err) }(time.Now())

	err = s.db.Select(ctx, &names, stmtListUnassigned)
	return names, err
}

func (s *RDBMSStore) ListByOwnerAndState(ctx context.Context, node string, state State) (names []string, err error) {
	defer func(start time.Time) { err = s.finish(ctx, "list_owner_state", start, err) }(time.Now())

	err = s.db.Select(ctx, &names, stmtListByOwnerAndState, node, string(state))
	return names, err
}

func (s *RDBMSStore) listTasks(ctx context.Context, op, query string) ([]CoordinatedTask, error) {
	rows, err := s.selectRows(ctx, op, query)
	if err != nil {
		return nil, err
	}
	tasks := make([]CoordinatedTask, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *RDBMSStore) selectRows(ctx context.Context, op, query string) (rows []taskRow, err error) {
	defer func(start time.Time) { err = s.finish(ctx, op, start, err) }(time.Now())

	err = s.db.Select(ctx, &rows, query)
	return rows, err
}

func nameRows(names []string) [][]any {
	return lo.Map(lo.Uniq(names), func(name string, _ int) []any {
		return []any{name}
	})
}
