package pg

import (
	"context"
	"database/sql"

	"bazario.org/user-service/internal/auth"
)

var _ auth.ActivityStore = (*ActivityStore)(nil)

// ActivityStore appends immutable user activity records.
type ActivityStore struct {
	db *sql.DB
}

func (s *ActivityStore) Append(ctx context.Context, entry *auth.Activity) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_activities(id, user_id, activity_type, description, ip_address, user_agent, suspicious, created_at)
		values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.UserID, entry.Type, entry.Description,
		entry.IP, entry.UserAgent, entry.Suspicious, entry.CreatedAt,
	)
	return err
}

func (s *ActivityStore) ListByUser(ctx context.Context, userID string, limit int) ([]*auth.Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, activity_type, description, ip_address, user_agent, suspicious, created_at
		from user_activities
		where user_id=$1 order by created_at desc limit $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*auth.Activity
	for rows.Next() {
		var a auth.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Description,
			&a.IP, &a.UserAgent, &a.Suspicious, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &a)
	}
	return res, rows.Err()
}
