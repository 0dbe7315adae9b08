package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

var eventDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type scheduledEventStore interface {
	List(ctx context.Context) ([]models.ScheduledEvent, error)
	ListForRecipient(ctx context.Context, filter models.ScheduledEventFilter) ([]models.ScheduledEvent, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledEvent, error)
	Create(ctx context.Context, event *models.ScheduledEvent) error
	Upsert(ctx context.Context, event *models.ScheduledEvent) error
	Update(ctx context.Context, event *models.ScheduledEvent) error
	Delete(ctx context.Context, id string) error
}

type directoryIndexer interface {
	Index(ctx context.Context) (*CourseIndex, error)
}

// SchedulerService stores calendar announcements addressed to providers and
// coordinators.
type SchedulerService struct {
	repo      scheduledEventStore
	directory directoryIndexer
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulerService constructs the service. directory may be nil, in which
// case coordinator recipients are stored as given.
func NewSchedulerService(repo scheduledEventStore, directory directoryIndexer, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *SchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{repo: repo, directory: directory, audit: audit, validator: validate, logger: logger}
}

// ValidateDate accepts only real calendar days written as YYYY-MM-DD.
func ValidateDate(date string) error {
	if !eventDatePattern.MatchString(date) {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"), "date", date)
	}
	if _, err := time.Parse(models.EventDateLayout, date); err != nil {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "date is not a calendar day"), "date", date)
	}
	return nil
}

// Create stores a new event and returns it.
func (s *SchedulerService) Create(ctx context.Context, req dto.CreateEventRequest, actorID int64) (*models.ScheduledEvent, error) {
	if err := ValidateDate(req.Date); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	recipients, err := s.buildRecipients(ctx, req.Recipients)
	if err != nil {
		return nil, err
	}
	event := &models.ScheduledEvent{
		Date:       req.Date,
		Title:      strings.TrimSpace(req.Title),
		Message:    cleanNote(req.Message),
		Recipients: recipients,
		CreatedBy:  actorID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, internalError(err, "failed to create event")
	}
	s.auditEvent(ctx, models.AuditActionEventCreate, actorID, event.ID, nil, event)
	return event, nil
}

// Update replaces title, message and recipients of an event.
func (s *SchedulerService) Update(ctx context.Context, id string, req dto.UpdateEventRequest, actorID int64) (*models.ScheduledEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	recipients, err := s.buildRecipients(ctx, req.Recipients)
	if err != nil {
		return nil, err
	}
	before := *existing
	existing.Title = strings.TrimSpace(req.Title)
	existing.Message = cleanNote(req.Message)
	existing.Recipients = recipients
	existing.UpdatedBy = int64Ptr(actorID)
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "event_id", id)
		}
		return nil, internalError(err, "failed to update event")
	}
	s.auditEvent(ctx, models.AuditActionEventUpdate, actorID, id, &before, existing)
	return existing, nil
}

// Delete removes an event. Missing events are reported as NOT_FOUND.
func (s *SchedulerService) Delete(ctx context.Context, id string, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.WithDetails(appErrors.ErrNotFound, "event_id", id)
		}
		return internalError(err, "failed to delete event")
	}
	s.auditEvent(ctx, models.AuditActionEventDelete, actorID, id, nil, nil)
	return nil
}

// Get returns one event.
func (s *SchedulerService) Get(ctx context.Context, id string) (*models.ScheduledEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "event_id", id)
		}
		return nil, internalError(err, "failed to load event")
	}
	return event, nil
}

// List returns every event ordered by date then title.
func (s *SchedulerService) List(ctx context.Context) ([]models.ScheduledEvent, error) {
	events, err := s.repo.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list events")
	}
	sortEvents(events)
	return events, nil
}

// ListForRecipient returns the events addressed to the identity, ordered by date
// then title. A match is by user id or case-insensitive email; a non-empty group
// restricts the match to recipients of that group.
func (s *SchedulerService) ListForRecipient(ctx context.Context, userID int64, email string, group models.RecipientGroup) ([]models.ScheduledEvent, error) {
	if group != "" && !group.Valid() {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown recipient group"), "group", string(group))
	}
	if userID <= 0 && strings.TrimSpace(email) == "" {
		return []models.ScheduledEvent{}, nil
	}
	events, err := s.repo.ListForRecipient(ctx, models.ScheduledEventFilter{UserID: userID, Email: email, Group: group})
	if err != nil {
		return nil, internalError(err, "failed to list events")
	}
	matched := events[:0]
	for _, event := range events {
		for _, r := range event.Recipients {
			if r.Matches(userID, email, group) {
				matched = append(matched, event)
				break
			}
		}
	}
	sortEvents(matched)
	return matched, nil
}

// Upsert creates or replaces an event with a caller chosen id. Used by the
// notification dispatcher to keep one portal event per batch.
func (s *SchedulerService) Upsert(ctx context.Context, event *models.ScheduledEvent) error {
	if err := ValidateDate(event.Date); err != nil {
		return err
	}
	if len(event.Recipients) == 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "recipients are required"), "event_id", event.ID)
	}
	if err := s.repo.Upsert(ctx, event); err != nil {
		return internalError(err, "failed to upsert event")
	}
	return nil
}

// buildRecipients normalises inputs, derives keys and drops duplicates. Key
// uniqueness is per group because the group is part of the key.
func (s *SchedulerService) buildRecipients(ctx context.Context, inputs []dto.RecipientInput) (models.RecipientList, error) {
	if len(inputs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recipients are required")
	}
	var index *CourseIndex
	if s.directory != nil {
		idx, err := s.directory.Index(ctx)
		if err != nil {
			return nil, err
		}
		index = idx
	}

	seen := make(map[string]struct{}, len(inputs))
	out := make(models.RecipientList, 0, len(inputs))
	for i, in := range inputs {
		r := models.Recipient{
			UserID:      in.UserID,
			Name:        strings.TrimSpace(in.Name),
			Email:       strings.ToLower(strings.TrimSpace(in.Email)),
			Group:       in.Group,
			DirectorKey: strings.TrimSpace(in.DirectorKey),
		}
		if index != nil && r.Group == models.RecipientGroupCoordinators {
			resolved, err := coordinatorRecipient(index, r, i)
			if err != nil {
				return nil, err
			}
			r = resolved
		}
		r.Key = models.RecipientKey(r.UserID, r.Email, r.Group)
		if r.Key == "" {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "recipient needs a user id or an email"), "recipient_index", itoa(i))
		}
		if _, dup := seen[r.Key]; dup {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// coordinatorRecipient accepts a coordinator recipient only when it maps to exactly
// one approved directory entry.
func coordinatorRecipient(index *CourseIndex, r models.Recipient, position int) (models.Recipient, error) {
	lookup := index.ResolveRecipient(r)
	switch lookup.Status {
	case models.LookupUnique:
		return withEntry(r, *lookup.Entry), nil
	case models.LookupAmbiguous:
		return r, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "coordinator recipient is ambiguous"),
			"recipient_index", itoa(position), "candidates", candidateIDs(lookup.Candidates))
	default:
		return r, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "coordinator recipient is not an approved coordinator"),
			"recipient_index", itoa(position))
	}
}

func (s *SchedulerService) auditEvent(ctx context.Context, action string, actorID int64, id string, before, after *models.ScheduledEvent) {
	entry := &models.AuditLog{UserID: int64Ptr(actorID), Action: action, Resource: "scheduled_event", ResourceID: stringPtr(id)}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	emitAudit(ctx, s.audit, s.logger, "scheduler-service", entry)
}

func sortEvents(events []models.ScheduledEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].Title < events[j].Title
	})
}
