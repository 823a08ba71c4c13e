package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const taskColumns = `t.task_id, t.dest_id, t.dir_id, t.copy_state`

func scanTask(row rowScanner) (Task, error) {
	var t Task
	err := row.Scan(&t.TaskID, &t.DestID, &t.DirID, &t.CopyState)
	return t, err
}

// CreateTask inserts an idle task binding dirID to destID and returns its ID.
func (c *Catalog) CreateTask(ctx context.Context, destID, dirID int64) (int64, error) {
	var id int64
	err := c.InTx(ctx, TxImmediate, func(ctx context.Context) error {
		res, err := c.conn.ExecContext(ctx,
			`INSERT INTO tasks (dest_id, dir_id, copy_state) VALUES (?, ?, ?)`,
			destID, dirID, Idle)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create task for dir %d on dest %d: %w", dirID, destID, err)
	}
	return id, nil
}

// GetTask returns the task with the given ID.
func (c *Catalog) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	var t *Task
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanTask(c.conn.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks AS t WHERE t.task_id = ?`, taskID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		t = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", taskID, err)
	}
	if t == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// ListTasks returns every task in TaskID order.
func (c *Catalog) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		rows, err := c.conn.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks AS t ORDER BY t.task_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// FirstClaimableTask returns the lowest-ID idle task whose destination,
// directory and owning host are all active and idle, or nil.
func (c *Catalog) FirstClaimableTask(ctx context.Context) (*Task, error) {
	var t *Task
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		found, err := scanTask(c.conn.QueryRowContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks AS t
			INNER JOIN directories AS d ON t.dir_id = d.dir_id
			INNER JOIN hosts AS h ON d.host_id = h.host_id
			INNER JOIN destinations AS s ON t.dest_id = s.dest_id
			WHERE t.copy_state = ?
			  AND s.active_state = ? AND s.copy_state = ?
			  AND h.active_state = ? AND h.copy_state = ?
			  AND d.active_state = ? AND d.copy_state = ?
			ORDER BY t.task_id
			LIMIT 1`,
			Idle, Active, Idle, Active, Idle, Active, Idle))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		t = &found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find claimable task: %w", err)
	}
	return t, nil
}

// SetTaskCopyState sets the copy state of one task.
func (c *Catalog) SetTaskCopyState(ctx context.Context, taskID int64, state CopyState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("task %d", taskID),
			`UPDATE tasks SET copy_state = ? WHERE task_id = ?`, state, taskID)
	})
}

// RemoveTask deletes one task.
func (c *Catalog) RemoveTask(ctx context.Context, taskID int64) error {
	return c.InTx(ctx, TxImmediate, func(ctx context.Context) error {
		return c.updateOne(ctx, fmt.Sprintf("task %d", taskID),
			`DELETE FROM tasks WHERE task_id = ?`, taskID)
	})
}

// ActivateTask sets the active state of the task's destination and
// directory. Tasks carry no active state of their own.
func (c *Catalog) ActivateTask(ctx context.Context, taskID int64, state ActiveState) error {
	return c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		t, err := c.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := c.ActivateDestination(ctx, t.DestID, state); err != nil {
			return err
		}
		return c.ActivateDirectory(ctx, t.DirID, state)
	})
}
