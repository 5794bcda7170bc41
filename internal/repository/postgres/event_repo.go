package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixcare/portal-core/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Open настраивает пул соединений; Ping делается в main с таймаутом.
func Open(connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// CreateEvent присваивает событию ID и пишет его в audit_events.
// Details сериализуются в строку — схема не зависит от формы payload'а.
func (r *EventRepo) CreateEvent(ctx context.Context, e audit.Event) (audit.Event, error) {
	e.ID = uuid.NewString()

	details, err := json.Marshal(e.Details)
	if err != nil {
		return audit.Event{}, fmt.Errorf("%w: encode details: %v", audit.ErrInvalidEvent, err)
	}

	query := `
		INSERT INTO audit_events
			(id, trace_id, occurred_at, actor_id, action, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.TraceID, e.OccurredAt, e.ActorID, e.Action, e.ResourceID, string(details),
	); err != nil {
		return audit.Event{}, fmt.Errorf("%w: create event: %v", audit.ErrStoreUnavailable, err)
	}
	return e, nil
}

func (r *EventRepo) GetEvent(ctx context.Context, id string) (audit.Event, error) {
	query := `
		SELECT id, trace_id, occurred_at, actor_id, action, resource_id, details,
		       COALESCE(batch_id, ''), COALESCE(merkle_root, ''), COALESCE(anchor_ref, '')
		FROM audit_events WHERE id = $1`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Event{}, fmt.Errorf("%w: event %s", audit.ErrNotFound, id)
	}
	if err != nil {
		return audit.Event{}, fmt.Errorf("%w: get event: %v", audit.ErrStoreUnavailable, err)
	}
	return ev, nil
}

// UpdateEventLink — единственная мутация события за весь его жизненный
// цикл: reconcile пишет привязку к запечатанному батчу.
func (r *EventRepo) UpdateEventLink(ctx context.Context, id string, link audit.BatchLink) (audit.Event, error) {
	query := `
		UPDATE audit_events
		SET batch_id = $1, merkle_root = $2, anchor_ref = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, link.BatchID, link.MerkleRoot, link.AnchorRef, id)
	if err != nil {
		return audit.Event{}, fmt.Errorf("%w: update event link: %v", audit.ErrStoreUnavailable, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return audit.Event{}, fmt.Errorf("%w: event %s", audit.ErrNotFound, id)
	}
	return r.GetEvent(ctx, id)
}

// ListEvents — отчетность и recovery sweep, не горячий путь.
func (r *EventRepo) ListEvents(ctx context.Context, f audit.EventFilter) ([]audit.Event, error) {
	// Динамически строим WHERE из непустых фильтров
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if f.ActorID != "" {
		args = append(args, f.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.UnlinkedOnly {
		conds = append(conds, "batch_id IS NULL")
	}
	if !f.Before.IsZero() {
		args = append(args, f.Before)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `
		SELECT id, trace_id, occurred_at, actor_id, action, resource_id, details,
		       COALESCE(batch_id, ''), COALESCE(merkle_root, ''), COALESCE(anchor_ref, '')
		FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", audit.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", audit.ErrStoreUnavailable, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (audit.Event, error) {
	var ev audit.Event
	var details string
	if err := row.Scan(
		&ev.ID, &ev.TraceID, &ev.OccurredAt, &ev.ActorID, &ev.Action, &ev.ResourceID,
		&details, &ev.BatchID, &ev.MerkleRoot, &ev.AnchorRef,
	); err != nil {
		return audit.Event{}, err
	}
	if details != "" {
		// Details в БД — строка; при невалидном JSON оставляем nil
		_ = json.Unmarshal([]byte(details), &ev.Details)
	}
	return ev, nil
}
