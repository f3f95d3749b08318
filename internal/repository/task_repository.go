package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskplanner/internal/model"
)

const taskColumns = `id, nano_id, title, description, is_completed, quadrant, priority,
		        time_required, time_block, difficulty, tags, planner_id, user_id,
		        created_at, updated_at`

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListTasks returns a planner's tasks by ascending priority. Equal
// priorities keep insertion order.
func (r *TaskRepository) ListTasks(ctx context.Context, plannerID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE planner_id = ?
		 ORDER BY priority ASC, rowid ASC`,
		plannerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListTasksByDate joins through the planner so callers never see another
// user's rows.
func (r *TaskRepository) ListTasksByDate(ctx context.Context, userID, date string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT t.id, t.nano_id, t.title, t.description, t.is_completed, t.quadrant, t.priority,
		        t.time_required, t.time_block, t.difficulty, t.tags, t.planner_id, t.user_id,
		        t.created_at, t.updated_at
		 FROM tasks t
		 JOIN planners p ON p.id = t.planner_id
		 WHERE t.user_id = ? AND p.date = ?
		 ORDER BY t.priority ASC, t.rowid ASC`,
		userID,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by date: %w", err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) InsertTask(ctx context.Context, task *model.Task) error {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
			id, nano_id, title, description, is_completed, quadrant, priority,
			time_required, time_block, difficulty, tags, planner_id, user_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.NanoID,
		task.Title,
		nullableString(task.Description),
		task.IsCompleted,
		string(task.Quadrant),
		task.Priority,
		nullableString(task.TimeRequired),
		nullableString(task.TimeBlock),
		nullableString(string(task.Difficulty)),
		tags,
		task.PlannerID,
		task.UserID,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task owned by userID.
func (r *TaskRepository) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		taskID,
		userID,
	)
	return scanTask(row)
}

// FindTaskByShortID resolves a public nano id within one user's tasks.
func (r *TaskRepository) FindTaskByShortID(ctx context.Context, userID, shortID string) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE nano_id = ? AND user_id = ?`,
		shortID,
		userID,
	)
	return scanTask(row)
}

// UpdateTask applies patch to the user's task and returns the stored row.
func (r *TaskRepository) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := r.updateTaskTx(ctx, tx, userID, taskID, patch)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update task: %w", err)
	}
	return task, nil
}

// UpdateTasks applies several patches atomically. Every id must belong to
// userID or nothing is written.
func (r *TaskRepository) UpdateTasks(ctx context.Context, userID string, patches map[string]model.TaskPatch, order []string) ([]model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updated := make([]model.Task, 0, len(order))
	for _, id := range order {
		task, err := r.updateTaskTx(ctx, tx, userID, id, patches[id])
		if err != nil {
			return nil, err
		}
		updated = append(updated, *task)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update tasks: %w", err)
	}
	return updated, nil
}

func (r *TaskRepository) updateTaskTx(ctx context.Context, tx *sql.Tx, userID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		taskID,
		userID,
	)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}

	patch.Apply(task)
	task.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(task.Tags)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE tasks
		 SET title = ?,
		     description = ?,
		     is_completed = ?,
		     quadrant = ?,
		     priority = ?,
		     time_required = ?,
		     time_block = ?,
		     difficulty = ?,
		     tags = ?,
		     updated_at = ?
		 WHERE id = ?`,
		task.Title,
		nullableString(task.Description),
		task.IsCompleted,
		string(task.Quadrant),
		task.Priority,
		nullableString(task.TimeRequired),
		nullableString(task.TimeBlock),
		nullableString(string(task.Difficulty)),
		tags,
		formatTime(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, userID, taskID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(s scanner) (*model.Task, error) {
	task := model.Task{}
	var description, timeRequired, timeBlock, difficulty sql.NullString
	var quadrant, tags, createdAt, updatedAt string
	err := s.Scan(
		&task.ID,
		&task.NanoID,
		&task.Title,
		&description,
		&task.IsCompleted,
		&quadrant,
		&task.Priority,
		&timeRequired,
		&timeBlock,
		&difficulty,
		&tags,
		&task.PlannerID,
		&task.UserID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Description = description.String
	task.TimeRequired = timeRequired.String
	task.TimeBlock = timeBlock.String
	task.Difficulty = model.Difficulty(difficulty.String)
	task.Quadrant = model.Quadrant(quadrant)

	task.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &task.Tags); err != nil {
			return nil, fmt.Errorf("decode task tags: %w", err)
		}
	}

	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse task updated_at: %w", err)
	}
	return &task, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode task tags: %w", err)
	}
	return string(raw), nil
}
