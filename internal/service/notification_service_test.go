package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/jobs"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/mailer"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Email
	failTo map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, email mailer.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[email.To] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, e := range f.sent {
		out[i] = e.To
	}
	return out
}

type fakeUpserter struct {
	events []*models.ScheduledEvent
	err    error
}

func (f *fakeUpserter) Upsert(ctx context.Context, event *models.ScheduledEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeEnqueuer struct {
	jobs []jobs.Job
}

func (f *fakeEnqueuer) Enqueue(job jobs.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func paidBatchItems() []models.PaymentRequest {
	return []models.PaymentRequest{
		{
			ID: "r1", BatchID: "b1", Course: "Cardiologia",
			CoordinatorKey: "ana souza|cardiologia", CoordinatorName: "Ana Souza", CoordinatorEmail: "ana@usp.br", CoordinatorUserID: 30,
			ProviderName: "Carlos", ProviderEmail: "carlos@mail.com", ProviderUserID: 101,
			ProviderValue: decimal.NewNullDecimal(decimal.RequireFromString("1500")),
			Status:        models.PaymentStatusApproved, FaepaPaid: true,
		},
		{
			ID: "r2", BatchID: "b1", Course: "Cardiologia",
			CoordinatorKey: "ana souza|cardiologia", CoordinatorName: "Ana Souza", CoordinatorEmail: "ana@usp.br", CoordinatorUserID: 30,
			ProviderName: "Carlos (2ª parcela)", ProviderEmail: "CARLOS@mail.com", ProviderUserID: 101,
			Status: models.PaymentStatusApproved, FaepaPaid: true,
		},
	}
}

func newTestDispatcher(sender mailer.Sender, events eventUpserter) *NotificationDispatcher {
	d := NewNotificationDispatcher(sender, events, NewMetricsService(), DefaultNotificationTemplate(), DispatcherConfig{
		FinanceEmail: "financeiro@faepa.br",
		FinanceName:  "Financeiro",
		MailTimeout:  time.Second,
	}, zap.NewNop())
	d.now = func() time.Time { return time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatchReachesEveryRecipientOnce(t *testing.T) {
	sender := &fakeSender{}
	events := &fakeUpserter{}
	d := newTestDispatcher(sender, events)

	note := "Pagamento via <b>PIX</b><script>alert(1)</script>"
	outcome, err := d.Dispatch(context.Background(), paidBatchItems(), &note)
	require.NoError(t, err)

	assert.Equal(t, []string{"financeiro@faepa.br", "ana@usp.br", "carlos@mail.com"}, sender.recipients())
	assert.Equal(t, 3, outcome.MailSent)
	assert.Equal(t, "faepa_pay_b1", outcome.EventID)

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, "faepa_pay_b1", event.ID)
	assert.Equal(t, "2024-05-03", event.Date)
	require.Len(t, event.Recipients, 2)
	assert.Equal(t, "user_30_coordinators", event.Recipients[0].Key)
	assert.Equal(t, "ana souza|cardiologia", event.Recipients[0].DirectorKey)
	assert.Equal(t, "user_101_providers", event.Recipients[1].Key)
	assert.Equal(t, 2, outcome.PortalTargets)

	mail := sender.sent[0]
	assert.Equal(t, "Pagamento realizado - Cardiologia", mail.Subject)
	assert.Contains(t, mail.TextBody, "• Carlos — R$ 1.500,00")
	assert.Contains(t, mail.TextBody, "• Carlos (2ª parcela) — –")
	assert.Contains(t, mail.HTMLBody, "<b>PIX</b>")
	assert.NotContains(t, mail.HTMLBody, "<script>")
}

func TestDispatchCollectsFailuresAndQueuesRetries(t *testing.T) {
	sender := &fakeSender{failTo: map[string]bool{"carlos@mail.com": true}}
	queue := &fakeEnqueuer{}
	d := newTestDispatcher(sender, nil)
	d.UseRetryQueue(queue)

	outcome, err := d.Dispatch(context.Background(), paidBatchItems(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.MailSent)
	assert.Zero(t, outcome.PortalTargets)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "carlos@mail.com")

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, mailRetryJobType, queue.jobs[0].Type)

	sender.failTo = nil
	require.NoError(t, d.HandleRetry(context.Background(), queue.jobs[0]))
	assert.Contains(t, sender.recipients(), "carlos@mail.com")
}

func TestDispatchFailsWhenNothingReached(t *testing.T) {
	sender := &fakeSender{failTo: map[string]bool{"financeiro@faepa.br": true, "ana@usp.br": true, "carlos@mail.com": true}}
	events := &fakeUpserter{err: errors.New("db down")}
	d := newTestDispatcher(sender, events)

	outcome, err := d.Dispatch(context.Background(), paidBatchItems(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDispatch))
	assert.Len(t, outcome.Errors, 4)
}

func TestDispatchPortalOnlyCountsAsDelivered(t *testing.T) {
	events := &fakeUpserter{}
	d := newTestDispatcher(nil, events)

	outcome, err := d.Dispatch(context.Background(), paidBatchItems(), nil)
	require.NoError(t, err)
	assert.Zero(t, outcome.MailSent)
	assert.Equal(t, 2, outcome.PortalTargets)
}

func TestLoadNotificationTemplate(t *testing.T) {
	tpl, err := LoadNotificationTemplate("")
	require.NoError(t, err)
	assert.Equal(t, DefaultNotificationTemplate(), tpl)

	path := filepath.Join(t.TempDir(), "notice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subject: \"Pago: [curso]\"\nbody: |\n  Lista:\n  [lista]\n  Obs: [observacao]\n"), 0o600))
	tpl, err = LoadNotificationTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "Pago: [curso]", tpl.Subject)

	rendered, err := tpl.Render(NoticeData{Course: "Pediatria", Lines: []NoticeLine{{Name: "Eva", Value: "R$ 10,00"}}, Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "Pago: Pediatria", rendered.Subject)
	assert.True(t, strings.HasPrefix(rendered.Text, "Lista:\n• Eva — R$ 10,00\nObs: ok"))
	assert.Contains(t, rendered.HTML, "<li>Eva — R$ 10,00</li>")

	_, err = LoadNotificationTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
