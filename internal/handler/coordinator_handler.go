package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/response"
)

type coordinatorDirectory interface {
	List(ctx context.Context, query dto.CoordinatorQuery) ([]models.CoordinatorEntry, error)
	Get(ctx context.Context, id string) (*models.CoordinatorEntry, error)
	Create(ctx context.Context, req dto.CoordinatorRequest, actorID int64) (*models.CoordinatorEntry, error)
	Update(ctx context.Context, id string, req dto.CoordinatorRequest, actorID int64) (*models.CoordinatorEntry, error)
	Delete(ctx context.Context, id string, actorID int64) error
}

// CoordinatorHandler exposes the course coordinator directory.
type CoordinatorHandler struct {
	directory coordinatorDirectory
}

// NewCoordinatorHandler builds a new handler.
func NewCoordinatorHandler(directory coordinatorDirectory) *CoordinatorHandler {
	return &CoordinatorHandler{directory: directory}
}

// List godoc
// @Summary List directory entries
// @Tags Coordinators
// @Produce json
// @Param status query string false "approved, pending or rejected"
// @Param course query string false "Course name"
// @Success 200 {object} response.Envelope
// @Router /coordinators [get]
func (h *CoordinatorHandler) List(c *gin.Context) {
	var query dto.CoordinatorQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	entries, err := h.directory.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Get godoc
// @Summary Get a directory entry
// @Tags Coordinators
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /coordinators/{id} [get]
func (h *CoordinatorHandler) Get(c *gin.Context) {
	entry, err := h.directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Create godoc
// @Summary Add a coordinator to the directory
// @Tags Coordinators
// @Accept json
// @Produce json
// @Param payload body dto.CoordinatorRequest true "Coordinator payload"
// @Success 201 {object} response.Envelope
// @Router /coordinators [post]
func (h *CoordinatorHandler) Create(c *gin.Context) {
	var req dto.CoordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid coordinator payload"))
		return
	}
	entry, err := h.directory.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Replace a directory entry
// @Tags Coordinators
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.CoordinatorRequest true "Coordinator payload"
// @Success 200 {object} response.Envelope
// @Router /coordinators/{id} [put]
func (h *CoordinatorHandler) Update(c *gin.Context) {
	var req dto.CoordinatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid coordinator payload"))
		return
	}
	entry, err := h.directory.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Remove a directory entry
// @Tags Coordinators
// @Param id path string true "Entry ID"
// @Success 204
// @Router /coordinators/{id} [delete]
func (h *CoordinatorHandler) Delete(c *gin.Context) {
	if err := h.directory.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
