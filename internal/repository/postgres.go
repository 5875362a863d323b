package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tasksSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	completed   BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresDataSource stores tasks in a Postgres table.
type PostgresDataSource struct {
	pool *pgxpool.Pool
}

// NewPostgresDataSource connects to databaseURL and verifies the connection.
func NewPostgresDataSource(ctx context.Context, databaseURL string) (*PostgresDataSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresDataSource{pool: pool}, nil
}

// EnsureSchema creates the tasks table if it does not exist.
func (s *PostgresDataSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, tasksSchema); err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

func (s *PostgresDataSource) GetTasks(ctx context.Context) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.GetTasks")
	defer span.End()

	const query = `SELECT id, title, description, completed FROM tasks ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

func (s *PostgresDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	const query = `SELECT id, title, description, completed FROM tasks WHERE id = $1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, id))
	span.SetAttributes(attribute.Bool("task.found", err == nil))
	return task, err
}

func (s *PostgresDataSource) SaveTask(ctx context.Context, task *model.Task) error {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.SaveTask",
		trace.WithAttributes(attribute.String("task.id", task.ID())),
	)
	defer span.End()

	const query = `
	INSERT INTO tasks (id, title, description, completed)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE
	SET title = EXCLUDED.title,
		description = EXCLUDED.description,
		completed = EXCLUDED.completed,
		updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query, task.ID(), task.Title(), task.Description(), task.IsCompleted())
	return err
}

func (s *PostgresDataSource) CompleteTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, true)
}

func (s *PostgresDataSource) ActivateTask(ctx context.Context, id string) error {
	return s.setCompleted(ctx, id, false)
}

func (s *PostgresDataSource) setCompleted(ctx context.Context, id string, completed bool) error {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.SetCompleted",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Bool("task.completed", completed),
		),
	)
	defer span.End()

	const query = `UPDATE tasks SET completed = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTaskNotFound
	}
	return nil
}

func (s *PostgresDataSource) ClearCompletedTasks(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.ClearCompletedTasks")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE completed`)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("task.removed", tag.RowsAffected()))
	return nil
}

func (s *PostgresDataSource) DeleteAllTasks(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.DeleteAllTasks")
	defer span.End()

	_, err := s.pool.Exec(ctx, `DELETE FROM tasks`)
	return err
}

func (s *PostgresDataSource) DeleteTask(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "PostgresDataSource.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTaskNotFound
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresDataSource) Close() {
	s.pool.Close()
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		id, title, description string
		completed              bool
	)
	if err := row.Scan(&id, &title, &description, &completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTaskNotFound
		}
		return nil, err
	}
	return model.NewTaskWithIDAndCompletion(title, description, id, completed), nil
}
