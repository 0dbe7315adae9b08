package dto

import (
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

// CreateBatchItem selects one submission and the coordinator that must decide it.
// The coordinator is given by directory id or by director name plus course.
type CreateBatchItem struct {
	SubmissionID  string `json:"submissionId" validate:"required"`
	CoordinatorID string `json:"coordinatorId"`
	Director      string `json:"director"`
	Course        string `json:"course"`
}

// CreateBatchRequest payload for sending a batch of submissions to a coordinator.
type CreateBatchRequest struct {
	Items     []CreateBatchItem `json:"items" validate:"required,min=1,dive"`
	NoteTitle string            `json:"noteTitle" validate:"max=200"`
	NoteBody  string            `json:"noteBody" validate:"max=5000"`
}

// CreateBatchResponse returns the new batch and its pending requests.
type CreateBatchResponse struct {
	BatchID  string                  `json:"batchId"`
	Requests []models.PaymentRequest `json:"requests"`
}

// DecisionRequest captures a coordinator decision.
type DecisionRequest struct {
	Status models.PaymentStatus `json:"status" validate:"required,oneof=approved rejected"`
	Note   *string              `json:"note" validate:"omitempty,max=2000"`
}

// ForwardRequest carries the optional note sent along with the batch.
type ForwardRequest struct {
	Note *string `json:"note" validate:"omitempty,max=2000"`
}

// MarkPaidRequest confirms payment of a request. AttachmentRef points at a receipt
// uploaded earlier; a multipart "receipt" file takes precedence.
type MarkPaidRequest struct {
	Note          *string `json:"note" form:"note" validate:"omitempty,max=2000"`
	AttachmentRef *string `json:"attachmentRef" form:"attachmentRef"`
}

// NotifyRequest carries the optional observation included in the payment notice.
type NotifyRequest struct {
	Note *string `json:"note" validate:"omitempty,max=2000"`
}

// BatchListQuery filters the finance dashboard.
type BatchListQuery struct {
	CoordinatorEmail string `form:"coordinatorEmail"`
	ForwardedOnly    bool   `form:"forwarded"`
}

// BatchDetailResponse is a batch with its aggregates.
type BatchDetailResponse struct {
	Summary models.BatchSummary     `json:"summary"`
	Items   []models.PaymentRequest `json:"items"`
}

// MarkPaidResponse reports the payment and whether it completed the batch. A
// failed automatic notice is reported in AutoNotifyError; the payment stays recorded.
type MarkPaidResponse struct {
	Request         *models.PaymentRequest `json:"request"`
	AutoNotified    bool                   `json:"autoNotified"`
	Notification    *NotificationResult    `json:"notification,omitempty"`
	AutoNotifyError *appErrors.Error       `json:"autoNotifyError,omitempty"`
}

// NotificationResult reports a payment notice dispatch. NotifiedCount and
// ApprovedCount describe the batch after the call.
type NotificationResult struct {
	BatchID       string   `json:"batchId"`
	EventID       string   `json:"eventId,omitempty"`
	MailSent      int      `json:"mailSent"`
	PortalTargets int      `json:"portalTargets"`
	Errors        []string `json:"errors,omitempty"`
	Marked        int      `json:"marked"`
	NotifiedCount int      `json:"notifiedCount"`
	ApprovedCount int      `json:"approvedCount"`
	AlreadyDone   bool     `json:"alreadyDone"`
}

// AttachmentLinkResponse returns a time limited receipt download link.
type AttachmentLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
