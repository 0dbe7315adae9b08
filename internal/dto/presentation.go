package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
)

// MissingValue is shown in place of absent snapshot values.
const MissingValue = "–"

// Display renders an optional value.
func Display(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return MissingValue
	}
	return *v
}

// DisplayString renders a possibly blank value.
func DisplayString(v string) string {
	if strings.TrimSpace(v) == "" {
		return MissingValue
	}
	return v
}

// FormatBRL renders an amount as "R$ 1.234,56".
func FormatBRL(v decimal.NullDecimal) string {
	if !v.Valid {
		return MissingValue
	}
	fixed := v.Decimal.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		grouped.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteString(intPart[i : i+3])
	}
	return sign + "R$ " + grouped.String() + "," + frac
}

// DetailRow is one labelled line of a request detail view.
type DetailRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DetailSection groups rows under a heading.
type DetailSection struct {
	Title string      `json:"title"`
	Rows  []DetailRow `json:"rows"`
}

// PaymentRequestDetail is a request together with its rendered snapshots.
type PaymentRequestDetail struct {
	Request       models.PaymentRequest `json:"request"`
	ProviderValue string                `json:"providerValueDisplay"`
	Sections      []DetailSection       `json:"sections"`
}

// NewPaymentRequestDetail renders the snapshots of a request.
func NewPaymentRequestDetail(req models.PaymentRequest) PaymentRequestDetail {
	return PaymentRequestDetail{
		Request:       req,
		ProviderValue: FormatBRL(req.ProviderValue),
		Sections: []DetailSection{
			{Title: "Prestador", Rows: []DetailRow{
				{Label: "Nome", Value: DisplayString(req.ProviderName)},
				{Label: "E-mail", Value: DisplayString(req.ProviderEmail)},
				{Label: "Telefone", Value: DisplayString(req.ProviderPhone)},
				{Label: "Documento", Value: DisplayString(req.ProviderDocument)},
				{Label: "Valor", Value: FormatBRL(req.ProviderValue)},
			}},
			{Title: "Pagamento", Rows: renderRows(req.SnapshotPayment.Rows())},
			{Title: "Serviço", Rows: renderRows(req.SnapshotService.Rows())},
			{Title: "Dados bancários", Rows: renderRows(req.SnapshotPayout.Rows())},
		},
	}
}

func renderRows(values []models.LabeledValue) []DetailRow {
	rows := make([]DetailRow, len(values))
	for i, v := range values {
		rows[i] = DetailRow{Label: v.Label, Value: Display(v.Value)}
	}
	return rows
}
