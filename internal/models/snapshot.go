package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the field-set revision written into new snapshots.
const SnapshotVersion = 1

// LabeledValue is one display row of a snapshot. A nil Value means the field was
// not provided; rendering a placeholder is up to the presentation layer.
type LabeledValue struct {
	Label string  `json:"label"`
	Value *string `json:"value"`
}

// PaymentSnapshot captures how the provider asked to be paid.
type PaymentSnapshot struct {
	Version        int     `json:"version"`
	Amount         *string `json:"amount,omitempty"`
	Method         *string `json:"method,omitempty"`
	Installments   *string `json:"installments,omitempty"`
	ReferenceMonth *string `json:"referenceMonth,omitempty"`
	DueDate        *string `json:"dueDate,omitempty"`
}

// Rows returns the labeled fields in display order.
func (s PaymentSnapshot) Rows() []LabeledValue {
	return []LabeledValue{
		{Label: "Valor", Value: s.Amount},
		{Label: "Forma de pagamento", Value: s.Method},
		{Label: "Parcelas", Value: s.Installments},
		{Label: "Mês de referência", Value: s.ReferenceMonth},
		{Label: "Vencimento", Value: s.DueDate},
	}
}

// Value implements driver.Valuer.
func (s PaymentSnapshot) Value() (driver.Value, error) { return marshalSnapshot(s) }

// Scan implements sql.Scanner.
func (s *PaymentSnapshot) Scan(src interface{}) error { return scanSnapshot(src, s) }

// ServiceSnapshot captures the service the provider delivered.
type ServiceSnapshot struct {
	Version     int     `json:"version"`
	Description *string `json:"description,omitempty"`
	Course      *string `json:"course,omitempty"`
	Period      *string `json:"period,omitempty"`
	Hours       *string `json:"hours,omitempty"`
	Location    *string `json:"location,omitempty"`
}

// Rows returns the labeled fields in display order.
func (s ServiceSnapshot) Rows() []LabeledValue {
	return []LabeledValue{
		{Label: "Serviço", Value: s.Description},
		{Label: "Curso", Value: s.Course},
		{Label: "Período", Value: s.Period},
		{Label: "Carga horária", Value: s.Hours},
		{Label: "Local", Value: s.Location},
	}
}

// Value implements driver.Valuer.
func (s ServiceSnapshot) Value() (driver.Value, error) { return marshalSnapshot(s) }

// Scan implements sql.Scanner.
func (s *ServiceSnapshot) Scan(src interface{}) error { return scanSnapshot(src, s) }

// PayoutSnapshot captures where the money goes.
type PayoutSnapshot struct {
	Version        int     `json:"version"`
	HolderName     *string `json:"holderName,omitempty"`
	HolderDocument *string `json:"holderDocument,omitempty"`
	Bank           *string `json:"bank,omitempty"`
	Agency         *string `json:"agency,omitempty"`
	Account        *string `json:"account,omitempty"`
	PixKey         *string `json:"pixKey,omitempty"`
}

// Rows returns the labeled fields in display order.
func (s PayoutSnapshot) Rows() []LabeledValue {
	return []LabeledValue{
		{Label: "Titular", Value: s.HolderName},
		{Label: "CPF/CNPJ do titular", Value: s.HolderDocument},
		{Label: "Banco", Value: s.Bank},
		{Label: "Agência", Value: s.Agency},
		{Label: "Conta", Value: s.Account},
		{Label: "Chave PIX", Value: s.PixKey},
	}
}

// Value implements driver.Valuer.
func (s PayoutSnapshot) Value() (driver.Value, error) { return marshalSnapshot(s) }

// Scan implements sql.Scanner.
func (s *PayoutSnapshot) Scan(src interface{}) error { return scanSnapshot(src, s) }

func marshalSnapshot(v interface{}) (driver.Value, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return payload, nil
}

func scanSnapshot(src interface{}, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported snapshot source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return nil
}
