package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/middleware"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/response"
)

const receiptFormField = "receipt"

type requestWorkflow interface {
	GetRequest(ctx context.Context, id string, actor *models.JWTClaims) (*dto.PaymentRequestDetail, error)
	Request(ctx context.Context, id string, actor *models.JWTClaims) (*models.PaymentRequest, error)
	Decide(ctx context.Context, id string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.PaymentRequest, error)
	MarkPaid(ctx context.Context, id string, req dto.MarkPaidRequest, actorID int64) (*dto.MarkPaidResponse, error)
	CoordinatorInbox(ctx context.Context, actor *models.JWTClaims, statuses []models.PaymentStatus) ([]models.PaymentRequest, error)
	History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.AuditLog, error)
}

type receiptStore interface {
	Upload(ctx context.Context, requestID, filename string, r io.Reader) (string, error)
	Discard(ref string)
	Link(req *models.PaymentRequest) (*dto.AttachmentLinkResponse, error)
}

// PaymentRequestHandler exposes per request workflow endpoints.
type PaymentRequestHandler struct {
	workflow requestWorkflow
	receipts receiptStore
}

// NewPaymentRequestHandler builds a new handler.
func NewPaymentRequestHandler(workflow requestWorkflow, receipts receiptStore) *PaymentRequestHandler {
	return &PaymentRequestHandler{workflow: workflow, receipts: receipts}
}

// Get godoc
// @Summary Get a payment request with its snapshots
// @Tags Payment Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /payment-requests/{id} [get]
func (h *PaymentRequestHandler) Get(c *gin.Context) {
	detail, err := h.workflow.GetRequest(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Decide godoc
// @Summary Approve or reject a payment request
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /payment-requests/{id}/decision [post]
func (h *PaymentRequestHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decision payload"))
		return
	}
	decided, err := h.workflow.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decided, nil)
}

// Pay godoc
// @Summary Confirm payment of an approved request
// @Description Accepts JSON or multipart form data with an optional "receipt" file.
// @Tags Payment Requests
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Request ID"
// @Param note formData string false "Payment note"
// @Param receipt formData file false "Payment receipt"
// @Success 200 {object} response.Envelope
// @Router /payment-requests/{id}/payment [post]
func (h *PaymentRequestHandler) Pay(c *gin.Context) {
	id := c.Param("id")
	var req dto.MarkPaidRequest
	var uploaded string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, bindError(err, "invalid payment form"))
			return
		}
		if header, err := c.FormFile(receiptFormField); err == nil {
			file, err := header.Open()
			if err != nil {
				response.Error(c, bindError(err, "unreadable receipt"))
				return
			}
			ref, err := h.receipts.Upload(c.Request.Context(), id, header.Filename, file)
			file.Close()
			if err != nil {
				response.Error(c, err)
				return
			}
			uploaded = ref
			req.AttachmentRef = &uploaded
		}
	} else if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, bindError(err, "invalid payment payload"))
		return
	}

	result, err := h.workflow.MarkPaid(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		if uploaded != "" {
			h.receipts.Discard(uploaded)
		}
		response.Error(c, err)
		return
	}
	if uploaded != "" && !recordsAttachment(result, uploaded) {
		// already paid requests keep their original receipt
		h.receipts.Discard(uploaded)
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func recordsAttachment(result *dto.MarkPaidResponse, ref string) bool {
	if result == nil || result.Request == nil || result.Request.FaepaPaymentAttachment == nil {
		return false
	}
	return *result.Request.FaepaPaymentAttachment == ref
}

// AttachmentLink godoc
// @Summary Get a time limited download link for the payment receipt
// @Tags Payment Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /payment-requests/{id}/attachment [get]
func (h *PaymentRequestHandler) AttachmentLink(c *gin.Context) {
	req, err := h.workflow.Request(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.receipts.Link(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// History godoc
// @Summary List the recorded transitions of a payment request
// @Tags Payment Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /payment-requests/{id}/history [get]
func (h *PaymentRequestHandler) History(c *gin.Context) {
	logs, err := h.workflow.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Inbox godoc
// @Summary List requests assigned to the calling coordinator
// @Tags Payment Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /coordinator/requests [get]
func (h *PaymentRequestHandler) Inbox(c *gin.Context) {
	var statuses []models.PaymentStatus
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if s := strings.ToLower(strings.TrimSpace(raw)); s != "" {
			statuses = append(statuses, models.PaymentStatus(s))
		}
	}
	rows, err := h.workflow.CoordinatorInbox(c.Request.Context(), claimsFromContext(c), statuses)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(rows))
	response.JSON(c, http.StatusOK, rows, nil, middleware.ExtractMeta(c))
}
