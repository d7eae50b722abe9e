package taskstore

import (
	"database/sql"

	"golang.org/x/xerrors"
)

// CoordinatedTask is one row of the task table.
type CoordinatedTask struct {
	Name string `json:"name"`
	// OwnerNodeID is empty when the task is not assigned to any node.
	OwnerNodeID string `json:"owner,omitempty"`
	State       State  `json:"state"`
}

// Assigned reports whether some node owns the task.
func (t CoordinatedTask) Assigned() bool {
	return t.OwnerNodeID != ""
}

type taskRow struct {
	Name  string         `db:"task_name"`
	Owner sql.NullString `db:"owner_node_id"`
	State string         `db:"task_state"`
}

func (r taskRow) toTask() (CoordinatedTask, error) {
	st, err := ParseState(r.State)
	if err != nil {
		return CoordinatedTask{}, xerrors.Errorf("task %s: %s: %w", r.Name, err, ErrInvalidRecord)
	}
	return CoordinatedTask{
		Name:        r.Name,
		OwnerNodeID: r.Owner.String,
		State:       st,
	}, nil
}
