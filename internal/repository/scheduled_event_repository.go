package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
)

const scheduledEventColumns = "id, event_date, title, message, recipients, created_by, created_at, updated_by, updated_at"

// ScheduledEventRepository provides persistence for scheduler events.
type ScheduledEventRepository struct {
	db *sqlx.DB
}

// NewScheduledEventRepository creates the repository.
func NewScheduledEventRepository(db *sqlx.DB) *ScheduledEventRepository {
	return &ScheduledEventRepository{db: db}
}

// List returns every event. Ordering is left to the caller.
func (r *ScheduledEventRepository) List(ctx context.Context) ([]models.ScheduledEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_events", scheduledEventColumns)
	var events []models.ScheduledEvent
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list scheduled events: %w", err)
	}
	return events, nil
}

// ListForRecipient returns events having at least one recipient matching the filter
// by user id or case-insensitive email, optionally restricted to a group.
func (r *ScheduledEventRepository) ListForRecipient(ctx context.Context, filter models.ScheduledEventFilter) ([]models.ScheduledEvent, error) {
	identity := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		identity = append(identity, fmt.Sprintf("(rcp->>'userId')::bigint = $%d", len(args)))
	}
	if email := strings.ToLower(strings.TrimSpace(filter.Email)); email != "" {
		args = append(args, email)
		identity = append(identity, fmt.Sprintf("LOWER(TRIM(rcp->>'email')) = $%d", len(args)))
	}
	if len(identity) == 0 {
		return []models.ScheduledEvent{}, nil
	}
	match := "(" + strings.Join(identity, " OR ") + ")"
	if filter.Group != "" {
		args = append(args, string(filter.Group))
		match += fmt.Sprintf(" AND rcp->>'group' = $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM scheduled_events
WHERE EXISTS (SELECT 1 FROM jsonb_array_elements(recipients) AS rcp WHERE %s)`, scheduledEventColumns, match)
	var events []models.ScheduledEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list recipient events: %w", err)
	}
	return events, nil
}

// GetByID returns an event by identifier.
func (r *ScheduledEventRepository) GetByID(ctx context.Context, id string) (*models.ScheduledEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_events WHERE id = $1", scheduledEventColumns)
	var event models.ScheduledEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a new event.
func (r *ScheduledEventRepository) Create(ctx context.Context, event *models.ScheduledEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scheduled_events (id, event_date, title, message, recipients, created_by, created_at)
VALUES (:id, :event_date, :title, :message, :recipients, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create scheduled event: %w", err)
	}
	return nil
}

// Upsert creates the event or replaces date, title, message and recipients of an
// existing one with the same id. The original creation stamp is kept.
func (r *ScheduledEventRepository) Upsert(ctx context.Context, event *models.ScheduledEvent) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = &now
	if event.UpdatedBy == nil {
		createdBy := event.CreatedBy
		event.UpdatedBy = &createdBy
	}
	const query = `INSERT INTO scheduled_events (id, event_date, title, message, recipients, created_by, created_at)
VALUES (:id, :event_date, :title, :message, :recipients, :created_by, :created_at)
ON CONFLICT (id) DO UPDATE SET event_date = EXCLUDED.event_date, title = EXCLUDED.title, message = EXCLUDED.message,
recipients = EXCLUDED.recipients, updated_by = :updated_by, updated_at = :updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("upsert scheduled event: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an event. It returns sql.ErrNoRows when
// the event does not exist.
func (r *ScheduledEventRepository) Update(ctx context.Context, event *models.ScheduledEvent) error {
	now := time.Now().UTC()
	event.UpdatedAt = &now
	const query = `UPDATE scheduled_events SET title = :title, message = :message, recipients = :recipients,
updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update scheduled event: %w", err)
	}
	return expectRows(result, "update scheduled event")
}

// Delete removes an event. It returns sql.ErrNoRows when the event does not exist.
func (r *ScheduledEventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete scheduled event: %w", err)
	}
	return expectRows(result, "delete scheduled event")
}
