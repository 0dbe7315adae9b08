package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
)

// SubmissionRepository reads provider submissions captured by the host portal.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = "id, user_id, name, email, phone, document, value, director, course, payment, service, payout, created_at"

// GetByIDs returns the submissions found among ids, keyed by id.
func (r *SubmissionRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.ProviderSubmission, error) {
	result := make(map[string]models.ProviderSubmission, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := fmt.Sprintf("SELECT %s FROM provider_submissions WHERE id = ANY($1)", submissionColumns)
	var submissions []models.ProviderSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, pqStringArray(ids)); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	for _, submission := range submissions {
		result[submission.ID] = submission
	}
	return result, nil
}
