package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/storage"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newTestAttachments(t *testing.T, maxSize int64) (*AttachmentService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Minute)
	return NewAttachmentService(store, signer, AttachmentConfig{APIPrefix: "/api/v1", MaxSize: maxSize}, zap.NewNop()), store
}

func TestAttachmentUploadLinkAndResolve(t *testing.T) {
	svc, store := newTestAttachments(t, 1<<20)

	ref, err := svc.Upload(context.Background(), "req-1", "comprovante.pdf", bytes.NewReader(samplePDF))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "receipts/req-1/"))
	assert.True(t, strings.HasSuffix(ref, ".pdf"))
	assert.True(t, store.Exists(ref))
	assert.True(t, svc.Exists(ref))

	link, err := svc.Link(&models.PaymentRequest{ID: "req-1", FaepaPaymentAttachment: &ref})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/attachments/download?token="))
	token := strings.TrimPrefix(link.URL, "/api/v1/attachments/download?token=")

	file, name, err := svc.Resolve(token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, content)
	assert.True(t, strings.HasSuffix(name, ".pdf"))

	_, _, err = svc.Resolve(token + "0")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAttachmentUploadRejectsTypeAndSize(t *testing.T) {
	svc, _ := newTestAttachments(t, 64)

	_, err := svc.Upload(context.Background(), "req-1", "nota.pdf", strings.NewReader("just some text pretending to be a pdf"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(context.Background(), "req-1", "vazio.pdf", bytes.NewReader(nil))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	big := append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("x"), 128)...)
	_, err = svc.Upload(context.Background(), "req-1", "grande.pdf", bytes.NewReader(big))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, "64", appErrors.FromError(err).Details["max_bytes"])
}

func TestAttachmentLinkRequiresReceipt(t *testing.T) {
	svc, _ := newTestAttachments(t, 1<<20)
	_, err := svc.Link(&models.PaymentRequest{ID: "req-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
