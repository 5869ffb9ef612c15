package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListNorms(ctx context.Context, userID string, activeOnly bool) ([]Norm, error) {
	query := `
		SELECT id, user_id, norm_name, is_active, is_default, display_order, created_at
		FROM user_norms
		WHERE user_id=$1`
	if activeOnly {
		query += ` AND is_active=TRUE`
	}
	query += ` ORDER BY display_order ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list norms: %w", err)
	}
	defer rows.Close()

	items := make([]Norm, 0)
	for rows.Next() {
		var item Norm
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.IsActive, &item.IsDefault, &item.DisplayOrder, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan norm: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate norms: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetNorm(ctx context.Context, userID, normID string) (Norm, error) {
	var item Norm
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, norm_name, is_active, is_default, display_order, created_at
		FROM user_norms
		WHERE user_id=$1 AND id=$2
	`, userID, normID).Scan(&item.ID, &item.UserID, &item.Name, &item.IsActive, &item.IsDefault, &item.DisplayOrder, &item.CreatedAt)
	if err != nil {
		return Norm{}, err
	}
	return item, nil
}

func (s *PostgresStore) CountNorms(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_norms WHERE user_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count norms: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountActiveNorms(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_norms WHERE user_id=$1 AND is_active=TRUE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active norms: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertNorm(ctx context.Context, norm Norm) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_norms (id, user_id, norm_name, is_active, is_default, display_order)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, norm.ID, norm.UserID, norm.Name, norm.IsActive, norm.IsDefault, norm.DisplayOrder)
	if err != nil {
		return fmt.Errorf("insert norm: %w", err)
	}
	return nil
}

func (s *PostgresStore) MaxDisplayOrder(ctx context.Context, userID string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(display_order), 0) FROM user_norms WHERE user_id=$1
	`, userID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max display order: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) SetNormActive(ctx context.Context, userID, normID string, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_norms SET is_active=$3 WHERE user_id=$1 AND id=$2
	`, userID, normID, active)
	if err != nil {
		return fmt.Errorf("set norm active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set norm active result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteNorm removes a custom norm. The is_default guard belongs to the
// service layer; this refuses default rows anyway so a bug upstream
// cannot break the invariant.
func (s *PostgresStore) DeleteNorm(ctx context.Context, userID, normID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_norms WHERE user_id=$1 AND id=$2 AND is_default=FALSE
	`, userID, normID)
	if err != nil {
		return fmt.Errorf("delete norm: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete norm result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReorderNorms rewrites display_order to the 1-based position of each
// id in orderedIDs, inside one transaction so readers see either the
// old ordering or the new one, never a mix.
func (s *PostgresStore) ReorderNorms(ctx context.Context, userID string, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	for position, normID := range orderedIDs {
		result, err := tx.ExecContext(ctx, `
			UPDATE user_norms SET display_order=$3 WHERE user_id=$1 AND id=$2
		`, userID, normID, position+1)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder norm %s: %w", normID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder norm %s result: %w", normID, err)
		}
		if affected == 0 {
			_ = tx.Rollback()
			return sql.ErrNoRows
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}
