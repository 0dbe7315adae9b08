package models

import "time"

// AuditAction constants represent workflow transitions to be logged.
const (
	AuditActionBatchCreate      = "PAYMENT_BATCH_CREATE"
	AuditActionRequestDecide    = "PAYMENT_REQUEST_DECIDE"
	AuditActionBatchForward     = "PAYMENT_BATCH_FORWARD"
	AuditActionRequestPay       = "PAYMENT_REQUEST_PAY"
	AuditActionBatchNotify      = "PAYMENT_BATCH_NOTIFY"
	AuditActionEventCreate      = "SCHEDULED_EVENT_CREATE"
	AuditActionEventUpdate      = "SCHEDULED_EVENT_UPDATE"
	AuditActionEventDelete      = "SCHEDULED_EVENT_DELETE"
	AuditActionCoordinatorWrite = "COORDINATOR_WRITE"
	AuditActionReceiptDownload  = "PAYMENT_RECEIPT_DOWNLOAD"
	AuditActionBatchExport      = "PAYMENT_BATCH_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
