package store

import (
	"context"
	"fmt"
	"time"

	"planoflife/api/internal/dates"
)

func (s *PostgresStore) IsCompleted(ctx context.Context, userID, normName string, day time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM daily_completions
			WHERE user_id=$1 AND norm_name=$2 AND completed_date=$3
		)
	`, userID, normName, dates.Format(day)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return exists, nil
}

// InsertCompletion records a completion fact. A concurrent duplicate
// insert is swallowed by the uniqueness constraint; the reported bool
// says whether this call created the row.
func (s *PostgresStore) InsertCompletion(ctx context.Context, userID, normName string, day time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_completions (user_id, norm_name, completed_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, norm_name, completed_date) DO NOTHING
	`, userID, normName, dates.Format(day))
	if err != nil {
		return false, fmt.Errorf("insert completion: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert completion result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteCompletion(ctx context.Context, userID, normName string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM daily_completions
		WHERE user_id=$1 AND norm_name=$2 AND completed_date=$3
	`, userID, normName, dates.Format(day))
	if err != nil {
		return fmt.Errorf("delete completion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCompletionsInRange(ctx context.Context, userID string, start, end time.Time) ([]Completion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, norm_name, completed_date, created_at
		FROM daily_completions
		WHERE user_id=$1 AND completed_date >= $2 AND completed_date <= $3
	`, userID, dates.Format(start), dates.Format(end))
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	items := make([]Completion, 0)
	for rows.Next() {
		var item Completion
		if err := rows.Scan(&item.UserID, &item.NormName, &item.CompletedDate, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		item.CompletedDate = dates.Midnight(item.CompletedDate)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return items, nil
}

// CountCompletionsByDate maps YYYY-MM-DD to the number of completions
// that day; days without completions are absent.
func (s *PostgresStore) CountCompletionsByDate(ctx context.Context, userID string, start, end time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT completed_date, COUNT(*)
		FROM daily_completions
		WHERE user_id=$1 AND completed_date >= $2 AND completed_date <= $3
		GROUP BY completed_date
	`, userID, dates.Format(start), dates.Format(end))
	if err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan completion count: %w", err)
		}
		counts[dates.Format(dates.Midnight(day))] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completion counts: %w", err)
	}
	return counts, nil
}
