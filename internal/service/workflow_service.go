package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/repository"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

const (
	auditResourceRequest = "payment_request"
	auditResourceBatch   = "payment_batch"
)

type paymentRequestStore interface {
	CreateBatch(ctx context.Context, requests []*models.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*models.PaymentRequest, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.PaymentRequest, error)
	List(ctx context.Context, filter models.PaymentRequestFilter) ([]models.PaymentRequest, error)
	ListAll(ctx context.Context) ([]models.PaymentRequest, error)
	Decide(ctx context.Context, params repository.DecideParams) error
	ForwardBatch(ctx context.Context, params repository.ForwardParams) (int64, error)
	MarkPaid(ctx context.Context, params repository.MarkPaidParams) error
	MarkNotified(ctx context.Context, params repository.MarkNotifiedParams) (int64, error)
}

type submissionReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]models.ProviderSubmission, error)
}

type noticeDispatcher interface {
	Dispatch(ctx context.Context, items []models.PaymentRequest, note *string) (DispatchOutcome, error)
}

type attachmentLocator interface {
	Exists(ref string) bool
}

type auditTrail interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// AutoNotifyResult reports whether a payment completed its batch and triggered the
// payment notice.
type AutoNotifyResult struct {
	Triggered bool
	Outcome   *dto.NotificationResult
}

// WorkflowService drives payment requests from batch creation to payment notice.
type WorkflowService struct {
	repo        paymentRequestStore
	submissions submissionReader
	directory   directoryIndexer
	dispatcher  noticeDispatcher
	attachments attachmentLocator
	audit       auditLogger
	trail       auditTrail
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	autoNotify  bool
	now         func() time.Time
}

// WorkflowDeps groups the collaborators of the workflow service.
type WorkflowDeps struct {
	Requests    paymentRequestStore
	Submissions submissionReader
	Directory   directoryIndexer
	Dispatcher  noticeDispatcher
	Attachments attachmentLocator
	Audit       auditLogger
	Trail       auditTrail
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	AutoNotify  bool
}

// NewWorkflowService constructs the workflow engine.
func NewWorkflowService(deps WorkflowDeps) *WorkflowService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &WorkflowService{
		repo:        deps.Requests,
		submissions: deps.Submissions,
		directory:   deps.Directory,
		dispatcher:  deps.Dispatcher,
		attachments: deps.Attachments,
		audit:       deps.Audit,
		trail:       deps.Trail,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
		autoNotify:  deps.AutoNotify,
		now:         time.Now,
	}
}

// CreateBatch snapshots the selected submissions into one pending request each,
// all bound to the same coordinator under a fresh batch id.
func (s *WorkflowService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actorID int64) (*dto.CreateBatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.SubmissionID)
		if _, dup := seen[id]; dup {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "submission listed twice"), "submission_id", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	submissions, err := s.submissions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(err, "failed to load submissions")
	}
	index, err := s.directory.Index(ctx)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	now := s.now().UTC()
	var coordinator *models.CoordinatorEntry
	requests := make([]*models.PaymentRequest, 0, len(req.Items))
	for i, item := range req.Items {
		sub, ok := submissions[ids[i]]
		if !ok {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "submission not found"), "submission_id", ids[i])
		}
		entry, err := resolveCoordinator(index, item, sub)
		if err != nil {
			return nil, err
		}
		if coordinator == nil {
			coordinator = entry
		} else if coordinator.ID != entry.ID {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "batch items must share one coordinator"),
				"submission_id", ids[i], "coordinator_id", entry.ID, "expected_coordinator_id", coordinator.ID)
		}
		requests = append(requests, newPaymentRequest(batchID, entry, sub, req, actorID, now))
	}

	if err := s.repo.CreateBatch(ctx, requests); err != nil {
		return nil, internalError(err, "failed to create payment batch")
	}

	out := make([]models.PaymentRequest, len(requests))
	for i, r := range requests {
		out[i] = *r
	}
	s.auditBatch(ctx, models.AuditActionBatchCreate, actorID, batchID, map[string]interface{}{
		"coordinatorKey": coordinator.Key().String(),
		"submissions":    ids,
	})
	s.logger.Info("payment batch created", zap.String("batch_id", batchID), zap.Int("items", len(out)))
	return &dto.CreateBatchResponse{BatchID: batchID, Requests: out}, nil
}

// Decide records an approval or rejection on a pending request.
func (s *WorkflowService) Decide(ctx context.Context, id string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.PaymentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	current, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !actor.IsCoordinatorOf(current) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrForbidden, "request is assigned to another coordinator"), "request_id", id)
	}
	if current.Status != models.PaymentStatusPending {
		return nil, alreadyDecided(current)
	}

	now := s.now().UTC()
	note := cleanNote(req.Note)
	params := repository.DecideParams{ID: id, Status: req.Status, DecidedBy: actor.UserID, DecidedAt: now, Note: note}
	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lost the race against another decision
			latest, loadErr := s.loadRequest(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, alreadyDecided(latest)
		}
		return nil, internalError(err, "failed to record decision")
	}

	before := *current
	current.Status = req.Status
	current.DecisionAt = &now
	current.DecisionNote = note
	current.DecidedBy = int64Ptr(actor.UserID)
	current.UpdatedAt = now

	s.metrics.RecordDecision(req.Status)
	s.auditRequest(ctx, models.AuditActionRequestDecide, actor.UserID, &before, current)
	return current, nil
}

// ForwardBatchToFinance hands a fully decided batch with at least one approval to
// the payer. Repeating the call on a forwarded batch changes nothing.
func (s *WorkflowService) ForwardBatchToFinance(ctx context.Context, batchID string, req dto.ForwardRequest, actorID int64) (*models.BatchSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	items, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	agg := models.Aggregate(items)
	if agg.Pending > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrIncompleteBatch, "batch_id", batchID, "pending", itoa(agg.Pending))
	}
	if agg.Approved == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrNoApprovedItems, "batch_id", batchID)
	}

	if !allForwarded(items) {
		rows, err := s.repo.ForwardBatch(ctx, repository.ForwardParams{
			BatchID:     batchID,
			ForwardedBy: actorID,
			ForwardedAt: s.now().UTC(),
			Note:        cleanNote(req.Note),
		})
		if err != nil {
			return nil, internalError(err, "failed to forward batch")
		}
		if rows > 0 {
			s.metrics.RecordForward()
			s.auditBatch(ctx, models.AuditActionBatchForward, actorID, batchID, map[string]interface{}{"items": rows})
		}
		if items, err = s.loadBatch(ctx, batchID); err != nil {
			return nil, err
		}
	}

	summary := models.Summarize(items)
	return &summary, nil
}

// MarkPaid confirms payment of an approved request and then evaluates whether the
// batch is ready for its payment notice. Confirming an already paid request keeps
// the original stamp.
func (s *WorkflowService) MarkPaid(ctx context.Context, id string, req dto.MarkPaidRequest, actorID int64) (*dto.MarkPaidResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	current, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.PaymentStatusApproved {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidState, "only approved requests can be paid"),
			"request_id", id, "status", string(current.Status))
	}

	attachment := cleanNote(req.AttachmentRef)
	if attachment != nil && s.attachments != nil && !s.attachments.Exists(*attachment) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "attachment not found"), "attachment_ref", *attachment)
	}

	if !current.FaepaPaid {
		now := s.now().UTC()
		note := cleanNote(req.Note)
		err := s.repo.MarkPaid(ctx, repository.MarkPaidParams{ID: id, PaidBy: actorID, PaidAt: now, Note: note, Attachment: attachment})
		switch {
		case err == nil:
			before := *current
			current.FaepaPaid = true
			current.FaepaPaidAt = &now
			current.FaepaPaidBy = int64Ptr(actorID)
			current.FaepaPaymentNote = note
			current.FaepaPaymentAttachment = attachment
			current.UpdatedAt = now
			s.metrics.RecordPayment()
			s.auditRequest(ctx, models.AuditActionRequestPay, actorID, &before, current)
		case errors.Is(err, sql.ErrNoRows):
			latest, loadErr := s.loadRequest(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			if latest.Status != models.PaymentStatusApproved || !latest.FaepaPaid {
				return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidState, "request changed while paying"),
					"request_id", id, "status", string(latest.Status))
			}
			current = latest
		default:
			return nil, internalError(err, "failed to confirm payment")
		}
	}

	resp := &dto.MarkPaidResponse{Request: current}
	auto, err := s.evaluateBatch(ctx, current.BatchID)
	if err != nil {
		// payment is committed; the notice can be sent again by hand
		resp.AutoNotifyError = appErrors.FromError(err)
		return resp, nil
	}
	resp.AutoNotified = auto.Triggered
	resp.Notification = auto.Outcome
	return resp, nil
}

// EvaluateAutoNotify sends the payment notice of the request's batch when every
// approved item is paid and at least one is not yet notified.
func (s *WorkflowService) EvaluateAutoNotify(ctx context.Context, requestID string) (AutoNotifyResult, error) {
	current, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return AutoNotifyResult{}, err
	}
	return s.evaluateBatch(ctx, current.BatchID)
}

func (s *WorkflowService) evaluateBatch(ctx context.Context, batchID string) (AutoNotifyResult, error) {
	if !s.autoNotify {
		return AutoNotifyResult{}, nil
	}
	items, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return AutoNotifyResult{}, err
	}
	if !models.Aggregate(items).AutoNotifyEligible() {
		return AutoNotifyResult{}, nil
	}
	outcome, err := s.notify(ctx, batchID, items, nil, NotifyTriggerAuto, 0)
	if err != nil {
		return AutoNotifyResult{Triggered: true}, err
	}
	return AutoNotifyResult{Triggered: true, Outcome: outcome}, nil
}

// SendPaymentNotifications sends the payment notice of a batch whose approved items
// are all paid, then marks the newly notified items. A batch already fully notified
// is reported as done without sending again.
func (s *WorkflowService) SendPaymentNotifications(ctx context.Context, batchID string, req dto.NotifyRequest, actorID int64) (*dto.NotificationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	items, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	agg := models.Aggregate(items)
	if agg.Approved == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrNoApprovedItems, "batch_id", batchID)
	}
	if agg.PaidCount < agg.Approved {
		return nil, appErrors.WithDetails(appErrors.ErrUnpaidItems, "batch_id", batchID, "unpaid", itoa(agg.Approved-agg.PaidCount))
	}
	if agg.NotifiedCount >= agg.Approved {
		return &dto.NotificationResult{
			BatchID:       batchID,
			NotifiedCount: agg.NotifiedCount,
			ApprovedCount: agg.Approved,
			AlreadyDone:   true,
		}, nil
	}
	return s.notify(ctx, batchID, items, req.Note, NotifyTriggerManual, actorID)
}

// notify dispatches the notice for the approved items and stamps the ones still
// unnotified. A failed dispatch marks nothing.
func (s *WorkflowService) notify(ctx context.Context, batchID string, items []models.PaymentRequest, note *string, trigger string, actorID int64) (*dto.NotificationResult, error) {
	approved := make([]models.PaymentRequest, 0, len(items))
	pending := make([]string, 0, len(items))
	notified := 0
	for _, item := range items {
		if item.Status != models.PaymentStatusApproved {
			continue
		}
		approved = append(approved, item)
		switch {
		case item.FaepaPaymentNotified:
			notified++
		case item.FaepaPaid:
			pending = append(pending, item.ID)
		}
	}

	note = cleanNote(note)
	outcome, err := s.dispatcher.Dispatch(ctx, approved, note)
	if err != nil {
		s.metrics.RecordNotification(trigger, false)
		s.logger.Warn("payment notice failed", zap.String("batch_id", batchID), zap.String("trigger", trigger), zap.Error(err))
		return nil, err
	}

	marked, err := s.repo.MarkNotified(ctx, repository.MarkNotifiedParams{IDs: pending, NotifiedAt: s.now().UTC(), Note: note})
	if err != nil {
		return nil, internalError(err, "failed to mark batch notified")
	}
	s.metrics.RecordNotification(trigger, true)

	result := &dto.NotificationResult{
		BatchID:       batchID,
		EventID:       outcome.EventID,
		MailSent:      outcome.MailSent,
		PortalTargets: outcome.PortalTargets,
		Errors:        outcome.Errors,
		Marked:        int(marked),
		NotifiedCount: notified + int(marked),
		ApprovedCount: len(approved),
	}
	var userID *int64
	if actorID > 0 {
		userID = int64Ptr(actorID)
	}
	payload, _ := json.Marshal(map[string]interface{}{"trigger": trigger, "result": result})
	emitAudit(ctx, s.audit, s.logger, "workflow-service", &models.AuditLog{
		UserID:     userID,
		Action:     models.AuditActionBatchNotify,
		Resource:   auditResourceBatch,
		ResourceID: stringPtr(batchID),
		NewValues:  payload,
	})
	return result, nil
}

// GetBatch returns a batch with its aggregates. Coordinators only see their own
// batches and the payer only sees forwarded ones.
func (s *WorkflowService) GetBatch(ctx context.Context, batchID string, actor *models.JWTClaims) (*dto.BatchDetailResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleCoordinator:
		if !actor.IsCoordinatorOf(&items[0]) {
			return nil, appErrors.WithDetails(appErrors.ErrForbidden, "batch_id", batchID)
		}
	case models.RoleFaepa:
		if !items[0].FaepaForwarded {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "batch_id", batchID)
		}
	case models.RoleProvider:
		return nil, appErrors.WithDetails(appErrors.ErrForbidden, "batch_id", batchID)
	}
	return &dto.BatchDetailResponse{Summary: models.Summarize(items), Items: items}, nil
}

// ListBatches returns one summary per batch, newest first. The payer only sees
// forwarded batches.
func (s *WorkflowService) ListBatches(ctx context.Context, query dto.BatchListQuery, actor *models.JWTClaims) ([]models.BatchSummary, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.PaymentRequestFilter{
		CoordinatorEmail: strings.TrimSpace(query.CoordinatorEmail),
		ForwardedOnly:    query.ForwardedOnly || actor.Role == models.RoleFaepa,
	}
	var rows []models.PaymentRequest
	var err error
	if filter.CoordinatorEmail == "" && !filter.ForwardedOnly {
		rows, err = s.repo.ListAll(ctx)
	} else {
		rows, err = s.repo.List(ctx, filter)
	}
	if err != nil {
		return nil, internalError(err, "failed to list payment requests")
	}
	return summarizeBatches(rows), nil
}

// CoordinatorInbox lists the requests assigned to the calling coordinator.
func (s *WorkflowService) CoordinatorInbox(ctx context.Context, actor *models.JWTClaims, statuses []models.PaymentStatus) ([]models.PaymentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown status"), "status", string(st))
		}
	}
	if actor.UserID <= 0 && strings.TrimSpace(actor.Email) == "" {
		return []models.PaymentRequest{}, nil
	}
	rows, err := s.repo.List(ctx, models.PaymentRequestFilter{
		CoordinatorUserID: actor.UserID,
		CoordinatorEmail:  actor.Email,
		Status:            statuses,
	})
	if err != nil {
		return nil, internalError(err, "failed to list coordinator requests")
	}
	return rows, nil
}

// GetRequest returns one request for display, scoped to what the caller may see.
func (s *WorkflowService) GetRequest(ctx context.Context, id string, actor *models.JWTClaims) (*dto.PaymentRequestDetail, error) {
	current, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, current) {
		return nil, appErrors.WithDetails(appErrors.ErrForbidden, "request_id", id)
	}
	detail := dto.NewPaymentRequestDetail(*current)
	return &detail, nil
}

// Request returns the raw request after the same visibility check as GetRequest.
func (s *WorkflowService) Request(ctx context.Context, id string, actor *models.JWTClaims) (*models.PaymentRequest, error) {
	current, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, current) {
		return nil, appErrors.WithDetails(appErrors.ErrForbidden, "request_id", id)
	}
	return current, nil
}

// History lists the recorded transitions of one request, oldest first.
func (s *WorkflowService) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.AuditLog, error) {
	if _, err := s.Request(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.trail.ListByResource(ctx, auditResourceRequest, id)
	if err != nil {
		return nil, internalError(err, "failed to load request history")
	}
	return logs, nil
}

func (s *WorkflowService) loadRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "request_id", id)
		}
		return nil, internalError(err, "failed to load payment request")
	}
	return req, nil
}

func (s *WorkflowService) loadBatch(ctx context.Context, batchID string) ([]models.PaymentRequest, error) {
	items, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, internalError(err, "failed to load payment batch")
	}
	if len(items) == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrNotFound, "batch_id", batchID)
	}
	return items, nil
}

func (s *WorkflowService) auditRequest(ctx context.Context, action string, actorID int64, before, after *models.PaymentRequest) {
	entry := &models.AuditLog{UserID: int64Ptr(actorID), Action: action, Resource: auditResourceRequest, ResourceID: stringPtr(after.ID)}
	entry.OldValues, _ = json.Marshal(before)
	entry.NewValues, _ = json.Marshal(after)
	emitAudit(ctx, s.audit, s.logger, "workflow-service", entry)
}

func (s *WorkflowService) auditBatch(ctx context.Context, action string, actorID int64, batchID string, values map[string]interface{}) {
	entry := &models.AuditLog{UserID: int64Ptr(actorID), Action: action, Resource: auditResourceBatch, ResourceID: stringPtr(batchID)}
	entry.NewValues, _ = json.Marshal(values)
	emitAudit(ctx, s.audit, s.logger, "workflow-service", entry)
}

// resolveCoordinator finds the single approved directory entry for a batch item.
// An explicit coordinator id wins, then director plus course from the item, then
// the director and course the provider filled in.
func resolveCoordinator(index *CourseIndex, item dto.CreateBatchItem, sub models.ProviderSubmission) (*models.CoordinatorEntry, error) {
	var lookup models.CoordinatorLookup
	switch {
	case strings.TrimSpace(item.CoordinatorID) != "":
		lookup = index.ByID(strings.TrimSpace(item.CoordinatorID))
	case strings.TrimSpace(item.Director) != "" && strings.TrimSpace(item.Course) != "":
		lookup = index.ByKey(models.NewDirectorKey(item.Director, item.Course))
	default:
		lookup = index.ByKey(models.NewDirectorKey(sub.Director, sub.Course))
	}
	switch lookup.Status {
	case models.LookupUnique:
		return lookup.Entry, nil
	case models.LookupAmbiguous:
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "coordinator is ambiguous"),
			"submission_id", sub.ID, "candidates", candidateIDs(lookup.Candidates))
	default:
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "coordinator not found"), "submission_id", sub.ID)
	}
}

func newPaymentRequest(batchID string, coordinator *models.CoordinatorEntry, sub models.ProviderSubmission, req dto.CreateBatchRequest, actorID int64, now time.Time) *models.PaymentRequest {
	payment, service, payout := sub.Payment, sub.Service, sub.Payout
	if payment.Version == 0 {
		payment.Version = models.SnapshotVersion
	}
	if service.Version == 0 {
		service.Version = models.SnapshotVersion
	}
	if payout.Version == 0 {
		payout.Version = models.SnapshotVersion
	}
	return &models.PaymentRequest{
		ID:                uuid.NewString(),
		BatchID:           batchID,
		CoordinatorKey:    coordinator.Key().String(),
		CoordinatorName:   coordinator.Director,
		CoordinatorEmail:  strings.ToLower(strings.TrimSpace(coordinator.Email)),
		CoordinatorUserID: coordinator.UserIDValue(),
		Course:            coordinator.Course,
		SubmissionID:      sub.ID,
		ProviderName:      strings.TrimSpace(sub.Name),
		ProviderEmail:     strings.ToLower(strings.TrimSpace(sub.Email)),
		ProviderValue:     sub.Value,
		ProviderPhone:     strings.TrimSpace(sub.Phone),
		ProviderDocument:  strings.TrimSpace(sub.Document),
		ProviderUserID:    sub.UserID,
		SnapshotPayment:   payment,
		SnapshotService:   service,
		SnapshotPayout:    payout,
		NoteTitle:         strings.TrimSpace(req.NoteTitle),
		NoteBody:          strings.TrimSpace(req.NoteBody),
		Status:            models.PaymentStatusPending,
		CreatedAt:         now,
		CreatedBy:         actorID,
		UpdatedAt:         now,
	}
}

func alreadyDecided(req *models.PaymentRequest) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidState, "request already decided"),
		"request_id", req.ID, "status", string(req.Status))
}

func allForwarded(items []models.PaymentRequest) bool {
	for _, item := range items {
		if !item.FaepaForwarded {
			return false
		}
	}
	return true
}

func canView(actor *models.JWTClaims, req *models.PaymentRequest) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleFinance:
		return true
	case models.RoleFaepa:
		return req.FaepaForwarded
	case models.RoleCoordinator:
		return actor.IsCoordinatorOf(req)
	case models.RoleProvider:
		if actor.UserID > 0 && req.ProviderUserID == actor.UserID {
			return true
		}
		return actor.Email != "" && strings.EqualFold(req.ProviderEmail, strings.TrimSpace(actor.Email))
	default:
		return false
	}
}

// summarizeBatches groups rows by batch keeping the order in which batches first
// appear.
func summarizeBatches(rows []models.PaymentRequest) []models.BatchSummary {
	order := make([]string, 0)
	groups := make(map[string][]models.PaymentRequest)
	for _, row := range rows {
		if _, ok := groups[row.BatchID]; !ok {
			order = append(order, row.BatchID)
		}
		groups[row.BatchID] = append(groups[row.BatchID], row)
	}
	out := make([]models.BatchSummary, 0, len(order))
	for _, id := range order {
		out = append(out, models.Summarize(groups[id]))
	}
	return out
}
