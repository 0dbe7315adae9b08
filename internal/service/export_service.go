package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

const exportTimeLayout = "02/01/2006 15:04"

var exportHeaders = []string{"Prestador", "E-mail", "Valor", "Status", "Decidido em", "Pago", "Pago em", "Notificado"}

type batchReader interface {
	GetBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*dto.BatchDetailResponse, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered batch export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders payment batches as CSV or PDF.
type ExportService struct {
	batches  batchReader
	csv      datasetRenderer
	pdf      datasetRenderer
	location *time.Location
	logger   *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// default exporters.
func NewExportService(batches batchReader, csv, pdf datasetRenderer, location *time.Location, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{batches: batches, csv: csv, pdf: pdf, location: location, logger: logger}
}

// ExportBatch renders one batch visible to actor.
func (s *ExportService) ExportBatch(ctx context.Context, batchID string, format ExportFormat, actor *models.JWTClaims) (*ExportFile, error) {
	var renderer datasetRenderer
	var contentType string
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportFormatCSV, "":
		format, renderer, contentType = ExportFormatCSV, s.csv, "text/csv; charset=utf-8"
	case ExportFormatPDF:
		format, renderer, contentType = ExportFormatPDF, s.pdf, "application/pdf"
	default:
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unsupported export format"), "format", string(format))
	}

	batch, err := s.batches.GetBatch(ctx, batchID, actor)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(s.batchDataset(batch))
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	s.logger.Debug("batch exported", zap.String("batch_id", batchID), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &ExportFile{
		Filename:    fmt.Sprintf("lote_%s.%s", sanitizeFilename(batchID), format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) batchDataset(batch *dto.BatchDetailResponse) export.Dataset {
	sum := batch.Summary
	forwarded := "não"
	if sum.Forwarded {
		forwarded = "sim"
		if sum.ForwardedAt != nil {
			forwarded += " (" + s.formatTime(sum.ForwardedAt) + ")"
		}
	}
	data := export.Dataset{
		Title: "Lote de pagamento " + sum.BatchID,
		Preamble: []string{
			"Curso: " + dto.DisplayString(sum.Course),
			"Coordenador: " + dto.DisplayString(sum.CoordinatorName) + " <" + sum.CoordinatorEmail + ">",
			fmt.Sprintf("Itens: %d | Aprovados: %d | Rejeitados: %d | Pendentes: %d", sum.Total, sum.Approved, sum.Rejected, sum.Pending),
			fmt.Sprintf("Pagos: %d | Notificados: %d", sum.PaidCount, sum.NotifiedCount),
			"Encaminhado à FAEPA: " + forwarded,
		},
		Headers: exportHeaders,
		Rows:    make([]map[string]string, 0, len(batch.Items)),
	}
	for _, item := range batch.Items {
		data.Rows = append(data.Rows, map[string]string{
			"Prestador":   dto.DisplayString(item.ProviderName),
			"E-mail":      dto.DisplayString(item.ProviderEmail),
			"Valor":       dto.FormatBRL(item.ProviderValue),
			"Status":      statusLabel(item.Status),
			"Decidido em": s.formatTime(item.DecisionAt),
			"Pago":        yesNo(item.FaepaPaid),
			"Pago em":     s.formatTime(item.FaepaPaidAt),
			"Notificado":  yesNo(item.FaepaPaymentNotified),
		})
	}
	return data
}

func (s *ExportService) formatTime(t *time.Time) string {
	if t == nil {
		return dto.MissingValue
	}
	return t.In(s.location).Format(exportTimeLayout)
}

func statusLabel(status models.PaymentStatus) string {
	switch status {
	case models.PaymentStatusApproved:
		return "aprovado"
	case models.PaymentStatusRejected:
		return "rejeitado"
	default:
		return "pendente"
	}
}

func yesNo(v bool) string {
	if v {
		return "sim"
	}
	return "não"
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
