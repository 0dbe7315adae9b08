package handler

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/response"
)

type receiptResolver interface {
	Resolve(token string) (*os.File, string, error)
}

// AttachmentHandler serves receipts behind signed links.
type AttachmentHandler struct {
	resolver receiptResolver
}

// NewAttachmentHandler builds a new handler.
func NewAttachmentHandler(resolver receiptResolver) *AttachmentHandler {
	return &AttachmentHandler{resolver: resolver}
}

// Download godoc
// @Summary Download a payment receipt
// @Tags Attachments
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /attachments/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing download token"))
		return
	}
	file, name, err := h.resolver.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	modTime := time.Time{}
	if info, err := file.Stat(); err == nil {
		modTime = info.ModTime()
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(c.Writer, c.Request, name, modTime, file)
}
