package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetUsageCount возвращает счётчик использования пользователя
// за месяц month (формат ГГГГ-ММ). Отсутствие строки означает 0.
func (s *Storage) GetUsageCount(ctx context.Context, userUID, month string) (int, error) {
	const op = "storage.GetUsageCount"
	query := `SELECT count FROM usage WHERE user_uid = $1 AND month = $2`

	var count int
	err := s.DB.QueryRowContext(ctx, query, userUID, month).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// IncrementUsage атомарно увеличивает счётчик за месяц на единицу,
// создавая строку при первом вызове в месяце, и возвращает новое
// значение. Счётчик только растёт, декремента нет.
func (s *Storage) IncrementUsage(ctx context.Context, userUID, month string) (int, error) {
	const op = "storage.IncrementUsage"
	query := `INSERT INTO usage (user_uid, month, count)
			  VALUES ($1, $2, 1)
			  ON CONFLICT (user_uid, month) DO UPDATE
			  SET count = usage.count + 1
			  RETURNING count`

	var count int
	if err := s.DB.QueryRowContext(ctx, query, userUID, month).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
