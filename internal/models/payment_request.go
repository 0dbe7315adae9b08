package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the coordinator decision state of a payment request.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Valid reports whether the status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	default:
		return false
	}
}

// PaymentRequest is one provider's payment ask bound to a batch and a coordinator.
// Coordinator and provider fields are snapshots taken when the batch was created;
// only the status, decision and faepa columns change afterwards.
type PaymentRequest struct {
	ID      string `db:"id" json:"id"`
	BatchID string `db:"batch_id" json:"batchId"`

	CoordinatorKey    string `db:"coordinator_key" json:"coordinatorKey"`
	CoordinatorName   string `db:"coordinator_name" json:"coordinatorName"`
	CoordinatorEmail  string `db:"coordinator_email" json:"coordinatorEmail"`
	CoordinatorUserID int64  `db:"coordinator_user_id" json:"coordinatorUserId,omitempty"`
	Course            string `db:"course" json:"course"`

	SubmissionID     string              `db:"submission_id" json:"submissionId"`
	ProviderName     string              `db:"provider_name" json:"providerName"`
	ProviderEmail    string              `db:"provider_email" json:"providerEmail"`
	ProviderValue    decimal.NullDecimal `db:"provider_value" json:"providerValue"`
	ProviderPhone    string              `db:"provider_phone" json:"providerPhone,omitempty"`
	ProviderDocument string              `db:"provider_document" json:"providerDocument,omitempty"`
	ProviderUserID   int64               `db:"provider_user_id" json:"providerUserId,omitempty"`

	SnapshotPayment PaymentSnapshot `db:"snapshot_payment" json:"snapshotPayment"`
	SnapshotService ServiceSnapshot `db:"snapshot_service" json:"snapshotService"`
	SnapshotPayout  PayoutSnapshot  `db:"snapshot_payout" json:"snapshotPayout"`

	NoteTitle string `db:"note_title" json:"noteTitle,omitempty"`
	NoteBody  string `db:"note_body" json:"noteBody,omitempty"`

	Status       PaymentStatus `db:"status" json:"status"`
	DecisionAt   *time.Time    `db:"decision_at" json:"decisionAt,omitempty"`
	DecisionNote *string       `db:"decision_note" json:"decisionNote,omitempty"`
	DecidedBy    *int64        `db:"decided_by" json:"decidedBy,omitempty"`

	FaepaForwarded     bool       `db:"faepa_forwarded" json:"faepaForwarded"`
	FaepaForwardedAt   *time.Time `db:"faepa_forwarded_at" json:"faepaForwardedAt,omitempty"`
	FaepaForwardedBy   *int64     `db:"faepa_forwarded_by" json:"faepaForwardedBy,omitempty"`
	FaepaForwardedNote *string    `db:"faepa_forwarded_note" json:"faepaForwardedNote,omitempty"`

	FaepaPaid              bool       `db:"faepa_paid" json:"faepaPaid"`
	FaepaPaidAt            *time.Time `db:"faepa_paid_at" json:"faepaPaidAt,omitempty"`
	FaepaPaidBy            *int64     `db:"faepa_paid_by" json:"faepaPaidBy,omitempty"`
	FaepaPaymentNote       *string    `db:"faepa_payment_note" json:"faepaPaymentNote,omitempty"`
	FaepaPaymentAttachment *string    `db:"faepa_payment_attachment" json:"faepaPaymentAttachment,omitempty"`

	FaepaPaymentNotified   bool       `db:"faepa_payment_notified" json:"faepaPaymentNotified"`
	FaepaPaymentNotifiedAt *time.Time `db:"faepa_payment_notified_at" json:"faepaPaymentNotifiedAt,omitempty"`
	FaepaPaymentNotifyNote *string    `db:"faepa_payment_notify_note" json:"faepaPaymentNotifyNote,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy int64     `db:"created_by" json:"createdBy"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// PaymentRequestFilter constrains listing queries.
type PaymentRequestFilter struct {
	BatchID           string
	CoordinatorUserID int64
	CoordinatorEmail  string
	Status            []PaymentStatus
	ForwardedOnly     bool
	Limit             int
	Offset            int
}

// BatchAggregate holds the counters derived from a batch's rows. Paid and notified
// counts only consider approved items.
type BatchAggregate struct {
	Total         int `json:"total"`
	Approved      int `json:"approved"`
	Rejected      int `json:"rejected"`
	Pending       int `json:"pending"`
	PaidCount     int `json:"paidCount"`
	NotifiedCount int `json:"notifiedCount"`
}

// Aggregate computes the batch counters for the given rows.
func Aggregate(items []PaymentRequest) BatchAggregate {
	agg := BatchAggregate{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case PaymentStatusApproved:
			agg.Approved++
			if item.FaepaPaid {
				agg.PaidCount++
			}
			if item.FaepaPaymentNotified {
				agg.NotifiedCount++
			}
		case PaymentStatusRejected:
			agg.Rejected++
		default:
			agg.Pending++
		}
	}
	return agg
}

// Forwardable reports whether the batch may be sent to the payer.
func (a BatchAggregate) Forwardable() bool {
	return a.Pending == 0 && a.Approved > 0
}

// AutoNotifyEligible reports whether every approved item is paid and at least one
// of them still lacks a payment notice.
func (a BatchAggregate) AutoNotifyEligible() bool {
	return a.Approved > 0 && a.PaidCount >= a.Approved && a.NotifiedCount < a.Approved
}

// BatchSummary is the per-batch row shown on the finance dashboard.
type BatchSummary struct {
	BatchID          string     `json:"batchId"`
	CoordinatorKey   string     `json:"coordinatorKey"`
	CoordinatorName  string     `json:"coordinatorName"`
	CoordinatorEmail string     `json:"coordinatorEmail"`
	Course           string     `json:"course"`
	CreatedAt        time.Time  `json:"createdAt"`
	Forwarded        bool       `json:"forwarded"`
	ForwardedAt      *time.Time `json:"forwardedAt,omitempty"`
	BatchAggregate
}

// Summarize builds a summary from the rows of one batch. Rows must be non-empty.
func Summarize(items []PaymentRequest) BatchSummary {
	first := items[0]
	summary := BatchSummary{
		BatchID:          first.BatchID,
		CoordinatorKey:   first.CoordinatorKey,
		CoordinatorName:  first.CoordinatorName,
		CoordinatorEmail: first.CoordinatorEmail,
		Course:           first.Course,
		CreatedAt:        first.CreatedAt,
		Forwarded:        first.FaepaForwarded,
		ForwardedAt:      first.FaepaForwardedAt,
		BatchAggregate:   Aggregate(items),
	}
	for _, item := range items[1:] {
		if item.CreatedAt.Before(summary.CreatedAt) {
			summary.CreatedAt = item.CreatedAt
		}
	}
	return summary
}
