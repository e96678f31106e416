package history

import (
	"context"
	"database/sql"
	"time"

	"pulseboard/internal/models"
)

// Repository provides append and query access to the alert history.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an opened, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for lifecycle management.
func (r *Repository) DB() *sql.DB { return r.db }

// InsertEvent records one alert transition.
func (r *Repository) InsertEvent(ctx context.Context, ev models.AlertEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alert_events (id,rule_id,level,state,message,value,fired_at)
		VALUES (?,?,?,?,?,?,?)`,
		ev.ID, ev.RuleID, string(ev.Level), ev.State, ev.Message, ev.Value, ev.FiredAt.UTC())
	return err
}

// InsertNotification records one delivery attempt outcome for an event.
func (r *Repository) InsertNotification(ctx context.Context, eventID, sink, status string, attempts int, errMsg string, sentAt *time.Time) error {
	var sent interface{}
	if sentAt != nil {
		utc := sentAt.UTC()
		sent = utc
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (event_id,sink,status,attempts,error,sent_at)
		VALUES (?,?,?,?,?,?)`,
		eventID, sink, status, attempts, errMsg, sent)
	return err
}

// RecentEvents returns the newest events first, at most limit of them,
// optionally filtered by rule id.
func (r *Repository) RecentEvents(ctx context.Context, ruleID string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id,rule_id,level,state,message,value,fired_at FROM alert_events`
	args := []interface{}{}
	if ruleID != "" {
		query += ` WHERE rule_id = ?`
		args = append(args, ruleID)
	}
	query += ` ORDER BY fired_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AlertEvent
	for rows.Next() {
		var ev models.AlertEvent
		var level string
		if err := rows.Scan(&ev.ID, &ev.RuleID, &level, &ev.State, &ev.Message, &ev.Value, &ev.FiredAt); err != nil {
			return nil, err
		}
		ev.Level = models.Level(level)
		out = append(out, ev)
	}
	return out, rows.Err()
}
