package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

// LatestEvents returns the newest audit events for a user, optionally
// filtered by type and entity.
func (r Repo) LatestEvents(ctx context.Context, n int, userID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,user_id,entity_kind,entity_id,payload_json FROM events WHERE user_id=?`
	args := []any{userID}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var uid, eid sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &uid, &e.EntityKind, &eid, &e.Payload); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.EntityID = eid.String
		res = append(res, e)
	}
	return res, rows.Err()
}
