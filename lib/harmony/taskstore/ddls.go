package taskstore

// Placeholders are numbered in order of first appearance so the same text
// binds correctly on postgres and sqlite.

// demoteState is the state a row ends up in when its owner changes:
// RUNNING becomes NONE and DEACTIVATED becomes PAUSED. Keep in sync with
// State.Demote.
const demoteState = `CASE task_state WHEN 'RUNNING' THEN 'NONE' WHEN 'DEACTIVATED' THEN 'PAUSED' ELSE task_state END`

const (
	stmtInsertTask = `INSERT INTO coordinated_tasks (task_name, owner_node_id, task_state) VALUES ($1, NULL, 'NONE')`

	stmtAssignTask = `UPDATE coordinated_tasks SET owner_node_id = $1, task_state = ` + demoteState +
		` WHERE task_name = $2 AND task_state <> 'COMPLETED'`
	stmtClaimTask = `UPDATE coordinated_tasks SET owner_node_id = $1, task_state = ` + demoteState +
		` WHERE task_name = $2 AND owner_node_id IS NULL AND task_state <> 'COMPLETED'`

	stmtReleaseTask = `UPDATE coordinated_tasks SET owner_node_id = NULL, task_state = ` + demoteState +
		` WHERE task_name = $1 AND task_state <> 'COMPLETED'`
	stmtReleaseNode = `UPDATE coordinated_tasks SET owner_node_id = NULL, task_state = ` + demoteState +
		` WHERE owner_node_id = $1 AND task_state <> 'COMPLETED'`

	stmtSetState         = `UPDATE coordinated_tasks SET task_state = $1 WHERE task_name = $2`
	stmtSetStateForOwner = `UPDATE coordinated_tasks SET task_state = $1 WHERE task_name = $2 AND owner_node_id = $3`

	stmtDeactivate = `UPDATE coordinated_tasks SET task_state = 'DEACTIVATED' WHERE task_name = $1 AND task_state NOT IN ('PAUSED', 'COMPLETED')`
	stmtActivate   = `UPDATE coordinated_tasks SET task_state = 'ACTIVATED' WHERE task_name = $1 AND task_state NOT IN ('RUNNING', 'COMPLETED')`

	stmtGetState = `SELECT task_state FROM coordinated_tasks WHERE task_name = $1`

	stmtDeleteTask = `DELETE FROM coordinated_tasks WHERE task_name = $1`
	stmtDeleteNode = `DELETE FROM coordinated_tasks WHERE owner_node_id = $1 AND task_state NOT IN ('COMPLETED', 'ACTIVATED', 'DEACTIVATED')`

	stmtListAll                = `SELECT task_name, owner_node_id, task_state FROM coordinated_tasks ORDER BY task_name`
	stmtListAssignedIncomplete = `SELECT task_name, owner_node_id, task_state FROM coordinated_tasks WHERE owner_node_id IS NOT NULL AND task_state <> 'COMPLETED' ORDER BY task_name`
	stmtListUnassigned         = `SELECT task_name FROM coordinated_tasks WHERE owner_node_id IS NULL AND task_state <> 'COMPLETED' ORDER BY task_name`
	stmtListByOwnerAndState    = `SELECT task_name FROM coordinated_tasks WHERE owner_node_id = $1 AND task_state = $2 ORDER BY task_name`
)

var ddls = []string{
	`CREATE TABLE IF NOT EXISTS coordinated_tasks (
		task_name VARCHAR(255) NOT NULL PRIMARY KEY,
		owner_node_id VARCHAR(255),
		task_state VARCHAR(32) NOT NULL DEFAULT 'NONE'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_coordinated_tasks_owner ON coordinated_tasks (owner_node_id)`,
}
