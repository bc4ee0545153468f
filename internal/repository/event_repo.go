package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meater_sync/internal/models"

	"github.com/google/uuid"
)

// EventSQLite is the append-only sync event journal.
type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

const sqliteTimeLayout = "2006-01-02 15:04:05"

const insertEventSQL = `
		INSERT INTO sync_events (id, occurred_at, type, device_id, message, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`

const selectEventsSQL = `SELECT id, occurred_at, type, device_id, message, meta FROM sync_events`

// Append stores e, assigning an ID and a UTC timestamp when they are missing.
// Metadata that cannot be marshalled is dropped rather than failing the write.
func (r *EventSQLite) Append(ctx context.Context, e models.SyncEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		at.UTC().Format(sqliteTimeLayout),
		normalizeEventType(e.Type),
		nullable(e.DeviceID),
		e.Description,
		encodeMeta(e.Metadata),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	return nil
}

// List returns matching events oldest first. From and To are inclusive.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.SyncEvent, error) {
	q, args := eventQuery(f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]models.SyncEvent, 0, 64)
	for rows.Next() {
		var (
			ev       models.SyncEvent
			deviceID sql.NullString
			meta     sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &deviceID, &ev.Description, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.DeviceID = deviceID.String
		ev.Metadata = decodeMeta(meta)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func eventQuery(f EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if !f.From.IsZero() {
		where("occurred_at >= ?", f.From.UTC().Format(sqliteTimeLayout))
	}
	if !f.To.IsZero() {
		where("occurred_at <= ?", f.To.UTC().Format(sqliteTimeLayout))
	}
	if typ := normalizeEventType(f.Type); typ != "" {
		where("type = ?", typ)
	}
	if dev := strings.TrimSpace(f.DeviceID); dev != "" {
		where("device_id = ?", dev)
	}

	var b strings.Builder
	b.WriteString(selectEventsSQL)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at ASC")
	return b.String(), args
}

func normalizeEventType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeMeta(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// decodeMeta keeps the raw text when the column is not valid JSON.
func decodeMeta(col sql.NullString) any {
	if !col.Valid || col.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return col.String
	}
	return v
}
