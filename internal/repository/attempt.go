package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-engine/internal/model"
)

const attemptColumns = `id, user_id, task_id, attempt_day, correct, reward, created_at`

// TaskAttemptRepository handles task-attempt records. Rows are immutable
// and never deleted; the daily reset only clears the per-account counter.
type TaskAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewTaskAttemptRepository creates a new TaskAttemptRepository instance.
func NewTaskAttemptRepository(pool *pgxpool.Pool) *TaskAttemptRepository {
	return &TaskAttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.TaskAttempt, error) {
	var a model.TaskAttempt
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.TaskID,
		&a.AttemptDay,
		&a.Correct,
		&a.Reward,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// truncateToDay normalizes a timestamp to its calendar date.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Insert writes the attempt record inside the caller's transaction. The
// unique index on (user_id, task_id, attempt_day) is the idempotency
// guarantee: a concurrent duplicate fails here with ErrDuplicateAttempt no
// matter what any earlier read said.
func (r *TaskAttemptRepository) Insert(ctx context.Context, tx pgx.Tx, userID, taskID int64, day time.Time, correct bool, reward int64) (*model.TaskAttempt, error) {
	query := `
		INSERT INTO task_attempts (user_id, task_id, attempt_day, correct, reward, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + attemptColumns

	attempt, err := scanAttempt(tx.QueryRow(ctx, query, userID, taskID, truncateToDay(day), correct, reward))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("failed to insert task attempt: %w", err)
	}
	return attempt, nil
}

// ExistsForDay reports whether the user already attempted the task on the
// given day. Advisory only; the unique index remains the authority.
func (r *TaskAttemptRepository) ExistsForDay(ctx context.Context, userID, taskID int64, day time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM task_attempts
			WHERE user_id = $1 AND task_id = $2 AND attempt_day = $3
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, taskID, truncateToDay(day)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task attempt: %w", err)
	}
	return exists, nil
}

// CountForDay returns how many attempts the user made on the given day.
func (r *TaskAttemptRepository) CountForDay(ctx context.Context, userID int64, day time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM task_attempts
		WHERE user_id = $1 AND attempt_day = $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, truncateToDay(day)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count task attempts: %w", err)
	}
	return count, nil
}

// GetByUserAndDay lists the user's attempts for one day, oldest first.
func (r *TaskAttemptRepository) GetByUserAndDay(ctx context.Context, userID int64, day time.Time) ([]*model.TaskAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM task_attempts
		WHERE user_id = $1 AND attempt_day = $2
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID, truncateToDay(day))
	if err != nil {
		return nil, fmt.Errorf("failed to get task attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.TaskAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task attempts: %w", err)
	}

	return attempts, nil
}
