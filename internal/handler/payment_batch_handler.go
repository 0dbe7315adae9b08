package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/middleware"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/service"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/response"
)

type batchWorkflow interface {
	CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actorID int64) (*dto.CreateBatchResponse, error)
	ListBatches(ctx context.Context, query dto.BatchListQuery, actor *models.JWTClaims) ([]models.BatchSummary, error)
	GetBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*dto.BatchDetailResponse, error)
	ForwardBatchToFinance(ctx context.Context, batchID string, req dto.ForwardRequest, actorID int64) (*models.BatchSummary, error)
	SendPaymentNotifications(ctx context.Context, batchID string, req dto.NotifyRequest, actorID int64) (*dto.NotificationResult, error)
}

type batchExporter interface {
	ExportBatch(ctx context.Context, batchID string, format service.ExportFormat, actor *models.JWTClaims) (*service.ExportFile, error)
}

// PaymentBatchHandler exposes the batch level workflow endpoints.
type PaymentBatchHandler struct {
	workflow batchWorkflow
	exporter batchExporter
}

// NewPaymentBatchHandler builds a new handler.
func NewPaymentBatchHandler(workflow batchWorkflow, exporter batchExporter) *PaymentBatchHandler {
	return &PaymentBatchHandler{workflow: workflow, exporter: exporter}
}

// Create godoc
// @Summary Send a batch of submissions to a coordinator
// @Tags Payment Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /payment-batches [post]
func (h *PaymentBatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid batch payload"))
		return
	}
	created, err := h.workflow.CreateBatch(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List batch summaries
// @Tags Payment Batches
// @Produce json
// @Param coordinatorEmail query string false "Coordinator e-mail"
// @Param forwarded query bool false "Only batches forwarded to FAEPA"
// @Success 200 {object} response.Envelope
// @Router /payment-batches [get]
func (h *PaymentBatchHandler) List(c *gin.Context) {
	var query dto.BatchListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	batches, err := h.workflow.ListBatches(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(batches))
	response.JSON(c, http.StatusOK, batches, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a batch with its aggregates
// @Tags Payment Batches
// @Produce json
// @Param batchId path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /payment-batches/{batchId} [get]
func (h *PaymentBatchHandler) Get(c *gin.Context) {
	batch, err := h.workflow.GetBatch(c.Request.Context(), c.Param("batchId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Forward godoc
// @Summary Forward a fully decided batch to FAEPA
// @Tags Payment Batches
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.ForwardRequest false "Forward note"
// @Success 200 {object} response.Envelope
// @Router /payment-batches/{batchId}/forward [post]
func (h *PaymentBatchHandler) Forward(c *gin.Context) {
	var req dto.ForwardRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, bindError(err, "invalid forward payload"))
		return
	}
	summary, err := h.workflow.ForwardBatchToFinance(c.Request.Context(), c.Param("batchId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Notify godoc
// @Summary Send the payment notice of a batch
// @Tags Payment Batches
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.NotifyRequest false "Notice observation"
// @Success 200 {object} response.Envelope
// @Router /payment-batches/{batchId}/notify [post]
func (h *PaymentBatchHandler) Notify(c *gin.Context) {
	var req dto.NotifyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, bindError(err, "invalid notify payload"))
		return
	}
	result, err := h.workflow.SendPaymentNotifications(c.Request.Context(), c.Param("batchId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a batch as CSV or PDF
// @Tags Payment Batches
// @Produce octet-stream
// @Param batchId path string true "Batch ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /payment-batches/{batchId}/export [get]
func (h *PaymentBatchHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	file, err := h.exporter.ExportBatch(c.Request.Context(), c.Param("batchId"), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}
