package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/storage"
)

const sniffLength = 3072

type attachmentStore interface {
	SaveStream(ref string, r io.Reader) (string, error)
	Open(ref string) (*os.File, error)
	Exists(ref string) bool
	Delete(ref string) error
}

// AttachmentConfig tunes receipt validation and download links.
type AttachmentConfig struct {
	APIPrefix    string
	MaxSize      int64
	AllowedMIMEs []string
}

// AttachmentService stores payment receipts and hands out signed download links.
type AttachmentService struct {
	store  attachmentStore
	signer *storage.SignedURLSigner
	cfg    AttachmentConfig
	logger *zap.Logger
}

// NewAttachmentService constructs the service.
func NewAttachmentService(store attachmentStore, signer *storage.SignedURLSigner, cfg AttachmentConfig, logger *zap.Logger) *AttachmentService {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 << 20
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{store: store, signer: signer, cfg: cfg, logger: logger}
}

// Upload validates a receipt by its content and stores it under the request. The
// returned reference is what MarkPaid records.
func (s *AttachmentService) Upload(ctx context.Context, requestID, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", internalError(err, "failed to read attachment")
	}
	head = head[:n]
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "attachment is empty")
	}

	detected := mimetype.Detect(head)
	if !mimetype.EqualsAny(detected.String(), s.cfg.AllowedMIMEs...) {
		return "", appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "attachment type not allowed"),
			"mime", detected.String(), "filename", filename)
	}

	ext := detected.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	ref := path.Join("receipts", requestID, uuid.NewString()+ext)

	counter := &countingReader{r: io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.cfg.MaxSize+1)}
	stored, err := s.store.SaveStream(ref, counter)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return "", appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid attachment path"), "request_id", requestID)
		}
		return "", internalError(err, "failed to store attachment")
	}
	if counter.n > s.cfg.MaxSize {
		if err := s.store.Delete(stored); err != nil {
			s.logger.Warn("failed to drop oversized attachment", zap.String("ref", stored), zap.Error(err))
		}
		return "", appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "attachment too large"),
			"max_bytes", fmt.Sprint(s.cfg.MaxSize))
	}
	s.logger.Info("attachment stored", zap.String("request_id", requestID), zap.String("ref", stored), zap.Int64("bytes", counter.n))
	return stored, nil
}

// Exists reports whether ref points at a stored receipt.
func (s *AttachmentService) Exists(ref string) bool {
	return s.store.Exists(ref)
}

// Discard removes a receipt stored for a payment that did not go through.
func (s *AttachmentService) Discard(ref string) {
	if err := s.store.Delete(ref); err != nil {
		s.logger.Warn("failed to discard attachment", zap.String("ref", ref), zap.Error(err))
	}
}

// Link returns a time limited download link for the receipt of req.
func (s *AttachmentService) Link(req *models.PaymentRequest) (*dto.AttachmentLinkResponse, error) {
	if req.FaepaPaymentAttachment == nil || *req.FaepaPaymentAttachment == "" {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "request has no receipt"), "request_id", req.ID)
	}
	token, expiresAt, err := s.signer.Generate(req.ID, *req.FaepaPaymentAttachment)
	if err != nil {
		return nil, internalError(err, "failed to sign attachment link")
	}
	return &dto.AttachmentLinkResponse{
		URL:       strings.TrimRight(s.cfg.APIPrefix, "/") + "/attachments/download?token=" + token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Resolve validates a download token and opens the receipt it points at.
func (s *AttachmentService) Resolve(token string) (*os.File, string, error) {
	_, ref, err := s.signer.Parse(token)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	default:
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download link")
	}
	file, err := s.store.Open(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
		}
		return nil, "", internalError(err, "failed to open receipt")
	}
	return file, path.Base(ref), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
