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

const coordinatorColumns = "id, course, director, email, user_id, status, created_by, created_at, updated_by, updated_at"

// CoordinatorRepository persists the coordinator directory.
type CoordinatorRepository struct {
	db *sqlx.DB
}

// NewCoordinatorRepository constructs the repository.
func NewCoordinatorRepository(db *sqlx.DB) *CoordinatorRepository {
	return &CoordinatorRepository{db: db}
}

// List returns directory entries ordered by course then director.
func (r *CoordinatorRepository) List(ctx context.Context, filter models.CoordinatorFilter) ([]models.CoordinatorEntry, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pqStringArray(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if course := strings.TrimSpace(filter.Course); course != "" {
		args = append(args, strings.ToLower(course))
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(course)) = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM coordinator_directory", coordinatorColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY LOWER(course) ASC, LOWER(director) ASC"

	var entries []models.CoordinatorEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list coordinators: %w", err)
	}
	return entries, nil
}

// GetByID returns one entry.
func (r *CoordinatorRepository) GetByID(ctx context.Context, id string) (*models.CoordinatorEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM coordinator_directory WHERE id = $1", coordinatorColumns)
	var entry models.CoordinatorEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create inserts a directory entry.
func (r *CoordinatorRepository) Create(ctx context.Context, entry *models.CoordinatorEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO coordinator_directory (id, course, director, email, user_id, status, created_by, created_at)
VALUES (:id, :course, :director, :email, :user_id, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	return nil
}

// Update replaces an entry. It returns sql.ErrNoRows when the entry does not exist.
func (r *CoordinatorRepository) Update(ctx context.Context, entry *models.CoordinatorEntry) error {
	now := time.Now().UTC()
	entry.UpdatedAt = &now
	const query = `UPDATE coordinator_directory SET course = :course, director = :director, email = :email, user_id = :user_id,
status = :status, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("update coordinator: %w", err)
	}
	return expectRows(result, "update coordinator")
}

// Delete removes an entry. It returns sql.ErrNoRows when the entry does not exist.
func (r *CoordinatorRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM coordinator_directory WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete coordinator: %w", err)
	}
	return expectRows(result, "delete coordinator")
}
