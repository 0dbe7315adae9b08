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
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/jobs"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/mailer"
)

const (
	defaultEventIDPrefix = "faepa_pay_"
	mailRetryJobType     = "payment_notice_mail"
)

type eventUpserter interface {
	Upsert(ctx context.Context, event *models.ScheduledEvent) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// DispatchOutcome reports how far a payment notice reached.
type DispatchOutcome struct {
	EventID       string
	MailSent      int
	PortalTargets int
	Errors        []string
}

// DispatcherConfig configures the notification dispatcher.
type DispatcherConfig struct {
	FinanceEmail  string
	FinanceName   string
	EventIDPrefix string
	MailTimeout   time.Duration
	Location      *time.Location
}

// NotificationDispatcher delivers the payment notice of a batch by mail and as a
// portal event.
type NotificationDispatcher struct {
	mailer   mailer.Sender
	events   eventUpserter
	retry    jobEnqueuer
	metrics  *MetricsService
	template NotificationTemplate
	cfg      DispatcherConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher. mailer and events may be nil
// to disable the matching channel.
func NewNotificationDispatcher(sender mailer.Sender, events eventUpserter, metrics *MetricsService, tpl NotificationTemplate, cfg DispatcherConfig, logger *zap.Logger) *NotificationDispatcher {
	if cfg.EventIDPrefix == "" {
		cfg.EventIDPrefix = defaultEventIDPrefix
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 15 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if strings.TrimSpace(tpl.Body) == "" {
		tpl = DefaultNotificationTemplate()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		mailer:   sender,
		events:   events,
		metrics:  metrics,
		template: tpl,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// UseRetryQueue routes failed deliveries to q.
func (d *NotificationDispatcher) UseRetryQueue(q jobEnqueuer) {
	d.retry = q
}

// EventID returns the portal event id of a batch.
func (d *NotificationDispatcher) EventID(batchID string) string {
	return d.cfg.EventIDPrefix + batchID
}

// Dispatch sends the notice for the approved items of one batch. It fails with
// DISPATCH_FAILED only when neither a mail nor the portal event went through.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, items []models.PaymentRequest, note *string) (DispatchOutcome, error) {
	if len(items) == 0 {
		return DispatchOutcome{}, appErrors.Clone(appErrors.ErrNoApprovedItems, "nothing to notify")
	}
	first := items[0]
	outcome := DispatchOutcome{EventID: d.EventID(first.BatchID)}
	logger := d.logger.With(zap.String("batch_id", first.BatchID))

	notice, err := d.template.Render(noticeData(items, note))
	if err != nil {
		return outcome, internalError(err, "failed to render payment notice")
	}

	if err := d.publishEvent(ctx, outcome.EventID, notice, items, &outcome); err != nil {
		outcome.Errors = append(outcome.Errors, "portal: "+err.Error())
		logger.Warn("portal event upsert failed", zap.Error(err))
	}

	var recipients []mailRecipient
	if d.mailer != nil {
		recipients = mailRecipients(d.cfg.FinanceEmail, d.cfg.FinanceName, items)
	}
	for _, rcpt := range recipients {
		email := mailer.Email{To: rcpt.email, ToName: rcpt.name, Subject: notice.Subject, TextBody: notice.Text, HTMLBody: notice.HTML}
		if err := d.send(ctx, email); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("mail %s: %v", rcpt.email, err))
			logger.Warn("payment notice mail failed", zap.String("to", rcpt.email), zap.Error(err))
			d.scheduleRetry(email, first.BatchID)
			continue
		}
		outcome.MailSent++
	}

	if outcome.MailSent+outcome.PortalTargets == 0 {
		return outcome, appErrors.WithDetails(appErrors.ErrDispatch, "batch_id", first.BatchID)
	}
	logger.Info("payment notice dispatched",
		zap.Int("mail_sent", outcome.MailSent),
		zap.Int("portal_targets", outcome.PortalTargets),
		zap.Int("errors", len(outcome.Errors)),
	)
	return outcome, nil
}

// HandleRetry is the jobs.Handler for queued mail retries.
func (d *NotificationDispatcher) HandleRetry(ctx context.Context, job jobs.Job) error {
	email, ok := job.Payload.(mailer.Email)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	return d.send(ctx, email)
}

func (d *NotificationDispatcher) send(ctx context.Context, email mailer.Email) error {
	if d.mailer == nil {
		return fmt.Errorf("mail delivery disabled")
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.MailTimeout)
	defer cancel()
	err := d.mailer.Send(sendCtx, email)
	d.metrics.RecordMailDelivery(err == nil)
	return err
}

func (d *NotificationDispatcher) scheduleRetry(email mailer.Email, batchID string) {
	if d.retry == nil {
		return
	}
	job := jobs.Job{ID: batchID + ":" + email.To, Type: mailRetryJobType, Payload: email}
	if err := d.retry.Enqueue(job); err != nil {
		d.logger.Warn("mail retry not queued", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (d *NotificationDispatcher) publishEvent(ctx context.Context, eventID string, notice RenderedNotice, items []models.PaymentRequest, outcome *DispatchOutcome) error {
	if d.events == nil {
		return nil
	}
	recipients := portalRecipients(items)
	if len(recipients) == 0 {
		return nil
	}
	message := notice.Text
	event := &models.ScheduledEvent{
		ID:         eventID,
		Date:       d.now().In(d.cfg.Location).Format(models.EventDateLayout),
		Title:      notice.Subject,
		Message:    &message,
		Recipients: recipients,
	}
	if err := d.events.Upsert(ctx, event); err != nil {
		return err
	}
	outcome.PortalTargets = len(recipients)
	return nil
}

func noticeData(items []models.PaymentRequest, note *string) NoticeData {
	data := NoticeData{Course: items[0].Course, Lines: make([]NoticeLine, 0, len(items))}
	for _, item := range items {
		data.Lines = append(data.Lines, NoticeLine{Name: item.ProviderName, Value: dto.FormatBRL(item.ProviderValue)})
	}
	if n := cleanNote(note); n != nil {
		data.Note = *n
	}
	return data
}

type mailRecipient struct {
	email string
	name  string
}

// mailRecipients lists finance, the coordinator and every provider, each address once.
func mailRecipients(financeEmail, financeName string, items []models.PaymentRequest) []mailRecipient {
	seen := make(map[string]struct{})
	var out []mailRecipient
	add := func(email, name string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			return
		}
		if _, dup := seen[email]; dup {
			return
		}
		seen[email] = struct{}{}
		out = append(out, mailRecipient{email: email, name: strings.TrimSpace(name)})
	}
	add(financeEmail, financeName)
	add(items[0].CoordinatorEmail, items[0].CoordinatorName)
	for _, item := range items {
		add(item.ProviderEmail, item.ProviderName)
	}
	return out
}

// portalRecipients addresses the coordinator and each provider of the batch.
func portalRecipients(items []models.PaymentRequest) models.RecipientList {
	seen := make(map[string]struct{})
	var out models.RecipientList
	add := func(r models.Recipient) {
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		r.Key = models.RecipientKey(r.UserID, r.Email, r.Group)
		if r.Key == "" {
			return
		}
		if _, dup := seen[r.Key]; dup {
			return
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
	}
	first := items[0]
	add(models.Recipient{
		UserID:       first.CoordinatorUserID,
		Name:         first.CoordinatorName,
		Email:        first.CoordinatorEmail,
		Group:        models.RecipientGroupCoordinators,
		DirectorKey:  first.CoordinatorKey,
		DirectorName: first.CoordinatorName,
		Course:       first.Course,
	})
	for _, item := range items {
		add(models.Recipient{
			UserID: item.ProviderUserID,
			Name:   item.ProviderName,
			Email:  item.ProviderEmail,
			Group:  models.RecipientGroupProviders,
		})
	}
	return out
}
