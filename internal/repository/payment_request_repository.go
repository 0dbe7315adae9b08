package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/database"
)

const paymentRequestColumns = `id, batch_id, coordinator_key, coordinator_name, coordinator_email, coordinator_user_id, course,
       submission_id, provider_name, provider_email, provider_value, provider_phone, provider_document, provider_user_id,
       snapshot_payment, snapshot_service, snapshot_payout, note_title, note_body,
       status, decision_at, decision_note, decided_by,
       faepa_forwarded, faepa_forwarded_at, faepa_forwarded_by, faepa_forwarded_note,
       faepa_paid, faepa_paid_at, faepa_paid_by, faepa_payment_note, faepa_payment_attachment,
       faepa_payment_notified, faepa_payment_notified_at, faepa_payment_notify_note,
       created_at, created_by, updated_at`

// PaymentRequestRepository persists payment requests and their workflow state.
type PaymentRequestRepository struct {
	db *sqlx.DB
}

// NewPaymentRequestRepository constructs the repository.
func NewPaymentRequestRepository(db *sqlx.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

// CreateBatch inserts every request of a batch in one transaction.
func (r *PaymentRequestRepository) CreateBatch(ctx context.Context, requests []*models.PaymentRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("create payment batch: no requests")
	}

	now := time.Now().UTC()
	const query = `INSERT INTO payment_requests
	(id, batch_id, coordinator_key, coordinator_name, coordinator_email, coordinator_user_id, course,
	 submission_id, provider_name, provider_email, provider_value, provider_phone, provider_document, provider_user_id,
	 snapshot_payment, snapshot_service, snapshot_payout, note_title, note_body, status, created_at, created_by, updated_at)
	VALUES (:id, :batch_id, :coordinator_key, :coordinator_name, :coordinator_email, :coordinator_user_id, :course,
	 :submission_id, :provider_name, :provider_email, :provider_value, :provider_phone, :provider_document, :provider_user_id,
	 :snapshot_payment, :snapshot_service, :snapshot_payout, :note_title, :note_body, :status, :created_at, :created_by, :updated_at)`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, req := range requests {
			if req.ID == "" {
				req.ID = uuid.NewString()
			}
			if req.Status == "" {
				req.Status = models.PaymentStatusPending
			}
			if req.CreatedAt.IsZero() {
				req.CreatedAt = now
			}
			req.UpdatedAt = req.CreatedAt
			if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
				return fmt.Errorf("insert payment request: %w", err)
			}
		}
		return nil
	})
}

// GetByID fetches one request.
func (r *PaymentRequestRepository) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM payment_requests WHERE id = $1", paymentRequestColumns)
	var req models.PaymentRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByBatch returns every request sharing the batch id, oldest first.
func (r *PaymentRequestRepository) ListByBatch(ctx context.Context, batchID string) ([]models.PaymentRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM payment_requests WHERE batch_id = $1 ORDER BY created_at ASC, provider_name ASC", paymentRequestColumns)
	var requests []models.PaymentRequest
	if err := r.db.SelectContext(ctx, &requests, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch requests: %w", err)
	}
	return requests, nil
}

// List returns requests matching the filter, newest first. A zero limit returns all rows.
func (r *PaymentRequestRepository) List(ctx context.Context, filter models.PaymentRequestFilter) ([]models.PaymentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString("SELECT ")
	builder.WriteString(paymentRequestColumns)
	builder.WriteString(" FROM payment_requests")

	conditions := make([]string, 0, 4)
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if filter.CoordinatorUserID > 0 && filter.CoordinatorEmail != "" {
		args = append(args, filter.CoordinatorUserID, strings.ToLower(filter.CoordinatorEmail))
		conditions = append(conditions, fmt.Sprintf("(coordinator_user_id = $%d OR LOWER(coordinator_email) = $%d)", len(args)-1, len(args)))
	} else if filter.CoordinatorUserID > 0 {
		args = append(args, filter.CoordinatorUserID)
		conditions = append(conditions, fmt.Sprintf("coordinator_user_id = $%d", len(args)))
	} else if filter.CoordinatorEmail != "" {
		args = append(args, strings.ToLower(filter.CoordinatorEmail))
		conditions = append(conditions, fmt.Sprintf("LOWER(coordinator_email) = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, pqStringArray(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.ForwardedOnly {
		conditions = append(conditions, "faepa_forwarded = TRUE")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, batch_id ASC")

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	var requests []models.PaymentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	return requests, nil
}

// ListAll returns every request ordered like List.
func (r *PaymentRequestRepository) ListAll(ctx context.Context) ([]models.PaymentRequest, error) {
	return r.List(ctx, models.PaymentRequestFilter{})
}

// DecideParams carries a coordinator decision.
type DecideParams struct {
	ID        string
	Status    models.PaymentStatus
	DecidedBy int64
	DecidedAt time.Time
	Note      *string
}

// Decide records a decision only while the request is still pending. It returns
// sql.ErrNoRows when the request is missing or no longer pending.
func (r *PaymentRequestRepository) Decide(ctx context.Context, params DecideParams) error {
	const query = `UPDATE payment_requests
	SET status = $1, decision_at = $2, decision_note = $3, decided_by = $4, updated_at = $2
	WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		params.Status, params.DecidedAt, params.Note, params.DecidedBy, params.ID, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("decide payment request: %w", err)
	}
	return expectRows(result, "decide payment request")
}

// ForwardParams carries the batch forwarding stamp.
type ForwardParams struct {
	BatchID     string
	ForwardedBy int64
	ForwardedAt time.Time
	Note        *string
}

// ForwardBatch stamps every not-yet-forwarded item of the batch. Items forwarded by
// an earlier call keep their original stamp. It returns the number of rows changed.
func (r *PaymentRequestRepository) ForwardBatch(ctx context.Context, params ForwardParams) (int64, error) {
	const query = `UPDATE payment_requests
	SET faepa_forwarded = TRUE, faepa_forwarded_at = $1, faepa_forwarded_by = $2, faepa_forwarded_note = $3, updated_at = $1
	WHERE batch_id = $4 AND faepa_forwarded = FALSE`
	result, err := r.db.ExecContext(ctx, query, params.ForwardedAt, params.ForwardedBy, params.Note, params.BatchID)
	if err != nil {
		return 0, fmt.Errorf("forward payment batch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check forward rows: %w", err)
	}
	return rows, nil
}

// MarkPaidParams carries a payment confirmation.
type MarkPaidParams struct {
	ID         string
	PaidBy     int64
	PaidAt     time.Time
	Note       *string
	Attachment *string
}

// MarkPaid confirms payment of an approved, unpaid item. It returns sql.ErrNoRows
// when the request is missing, not approved, or already paid.
func (r *PaymentRequestRepository) MarkPaid(ctx context.Context, params MarkPaidParams) error {
	const query = `UPDATE payment_requests
	SET faepa_paid = TRUE, faepa_paid_at = $1, faepa_paid_by = $2, faepa_payment_note = $3, faepa_payment_attachment = $4, updated_at = $1
	WHERE id = $5 AND status = $6 AND faepa_paid = FALSE`
	result, err := r.db.ExecContext(ctx, query,
		params.PaidAt, params.PaidBy, params.Note, params.Attachment, params.ID, models.PaymentStatusApproved)
	if err != nil {
		return fmt.Errorf("mark payment request paid: %w", err)
	}
	return expectRows(result, "mark payment request paid")
}

// MarkNotifiedParams carries the notification stamp for a set of items.
type MarkNotifiedParams struct {
	IDs        []string
	NotifiedAt time.Time
	Note       *string
}

// MarkNotified stamps the given items that are approved, paid and not yet notified.
// It returns the number of rows changed.
func (r *PaymentRequestRepository) MarkNotified(ctx context.Context, params MarkNotifiedParams) (int64, error) {
	if len(params.IDs) == 0 {
		return 0, nil
	}
	const query = `UPDATE payment_requests
	SET faepa_payment_notified = TRUE, faepa_payment_notified_at = $1, faepa_payment_notify_note = $2, updated_at = $1
	WHERE id = ANY($3) AND status = $4 AND faepa_paid = TRUE AND faepa_payment_notified = FALSE`
	result, err := r.db.ExecContext(ctx, query, params.NotifiedAt, params.Note, pqStringArray(params.IDs), models.PaymentStatusApproved)
	if err != nil {
		return 0, fmt.Errorf("mark payment requests notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check notified rows: %w", err)
	}
	return rows, nil
}
