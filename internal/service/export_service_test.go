package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

type batchStub struct {
	detail *dto.BatchDetailResponse
	err    error
}

func (b batchStub) GetBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*dto.BatchDetailResponse, error) {
	return b.detail, b.err
}

func sampleBatchDetail() *dto.BatchDetailResponse {
	paidAt := time.Date(2024, 5, 3, 15, 30, 0, 0, time.UTC)
	items := []models.PaymentRequest{
		{ID: "r1", BatchID: "b1", Course: "Cardiologia", CoordinatorName: "Ana Souza", CoordinatorEmail: "ana@usp.br",
			ProviderName: "Carlos", ProviderEmail: "carlos@mail.com", ProviderValue: decimal.NewNullDecimal(decimal.RequireFromString("1234.5")),
			Status: models.PaymentStatusApproved, FaepaForwarded: true, FaepaPaid: true, FaepaPaidAt: &paidAt},
		{ID: "r2", BatchID: "b1", Course: "Cardiologia", CoordinatorName: "Ana Souza", CoordinatorEmail: "ana@usp.br",
			ProviderName: "Daniela", Status: models.PaymentStatusRejected, FaepaForwarded: true},
	}
	return &dto.BatchDetailResponse{Summary: models.Summarize(items), Items: items}
}

func TestExportBatchCSV(t *testing.T) {
	svc := NewExportService(batchStub{detail: sampleBatchDetail()}, nil, nil, time.UTC, zap.NewNop())
	file, err := svc.ExportBatch(context.Background(), "b1", ExportFormatCSV, financeActor)
	require.NoError(t, err)

	assert.Equal(t, "lote_b1.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	content := string(bytes.TrimPrefix(file.Data, []byte("\ufeff")))
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Prestador;E-mail;Valor;Status;Decidido em;Pago;Pago em;Notificado", lines[0])
	assert.Equal(t, "Carlos;carlos@mail.com;R$ 1.234,50;aprovado;–;sim;03/05/2024 15:30;não", lines[1])
	assert.Equal(t, "Daniela;–;–;rejeitado;–;não;–;não", lines[2])
}

func TestExportBatchPDF(t *testing.T) {
	svc := NewExportService(batchStub{detail: sampleBatchDetail()}, nil, nil, nil, nil)
	file, err := svc.ExportBatch(context.Background(), "b1", "PDF", financeActor)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportBatchErrors(t *testing.T) {
	svc := NewExportService(batchStub{err: appErrors.ErrNotFound}, nil, nil, nil, nil)
	_, err := svc.ExportBatch(context.Background(), "b1", "xlsx", financeActor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportBatch(context.Background(), "b1", ExportFormatCSV, financeActor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
