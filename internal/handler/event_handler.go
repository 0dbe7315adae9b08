package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/response"
)

type eventScheduler interface {
	List(ctx context.Context) ([]models.ScheduledEvent, error)
	Get(ctx context.Context, id string) (*models.ScheduledEvent, error)
	Create(ctx context.Context, req dto.CreateEventRequest, actorID int64) (*models.ScheduledEvent, error)
	Update(ctx context.Context, id string, req dto.UpdateEventRequest, actorID int64) (*models.ScheduledEvent, error)
	Delete(ctx context.Context, id string, actorID int64) error
	ListForRecipient(ctx context.Context, userID int64, email string, group models.RecipientGroup) ([]models.ScheduledEvent, error)
}

// EventHandler exposes scheduled announcement endpoints.
type EventHandler struct {
	scheduler eventScheduler
}

// NewEventHandler builds a new handler.
func NewEventHandler(scheduler eventScheduler) *EventHandler {
	return &EventHandler{scheduler: scheduler}
}

// List godoc
// @Summary List scheduled events
// @Tags Events
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	events, err := h.scheduler.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Get a scheduled event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.scheduler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Schedule an event for a set of recipients
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid event payload"))
		return
	}
	event, err := h.scheduler.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Replace title, message and recipients of an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid event payload"))
		return
	}
	event, err := h.scheduler.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete a scheduled event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.scheduler.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Mine godoc
// @Summary List events addressed to the caller
// @Tags Events
// @Produce json
// @Param group query string false "providers or coordinators"
// @Success 200 {object} response.Envelope
// @Router /events/mine [get]
func (h *EventHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.MyEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	events, err := h.scheduler.ListForRecipient(c.Request.Context(), claims.UserID, claims.Email, query.Group)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
