package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderSubmission is the provider-submitted form a payment request snapshots.
type ProviderSubmission struct {
	ID        string              `db:"id" json:"id"`
	UserID    int64               `db:"user_id" json:"userId,omitempty"`
	Name      string              `db:"name" json:"name"`
	Email     string              `db:"email" json:"email"`
	Phone     string              `db:"phone" json:"phone,omitempty"`
	Document  string              `db:"document" json:"document,omitempty"`
	Value     decimal.NullDecimal `db:"value" json:"value"`
	Director  string              `db:"director" json:"director,omitempty"`
	Course    string              `db:"course" json:"course,omitempty"`
	Payment   PaymentSnapshot     `db:"payment" json:"payment"`
	Service   ServiceSnapshot     `db:"service" json:"service"`
	Payout    PayoutSnapshot      `db:"payout" json:"payout"`
	CreatedAt time.Time           `db:"created_at" json:"createdAt"`
}
