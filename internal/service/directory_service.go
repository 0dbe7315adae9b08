package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

const directoryApprovedCacheKey = "directory:approved"

type coordinatorStore interface {
	List(ctx context.Context, filter models.CoordinatorFilter) ([]models.CoordinatorEntry, error)
	GetByID(ctx context.Context, id string) (*models.CoordinatorEntry, error)
	Create(ctx context.Context, entry *models.CoordinatorEntry) error
	Update(ctx context.Context, entry *models.CoordinatorEntry) error
	Delete(ctx context.Context, id string) error
}

// DirectoryService manages the coordinator directory and resolves coordinators
// for batch assignment and scheduler recipients.
type DirectoryService struct {
	repo      coordinatorStore
	cache     *CacheService
	cacheTTL  time.Duration
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectoryService constructs the service. cache may be nil.
func NewDirectoryService(repo coordinatorStore, cache *CacheService, cacheTTL time.Duration, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{repo: repo, cache: cache, cacheTTL: cacheTTL, audit: audit, validator: validate, logger: logger}
}

// List returns directory entries matching the query.
func (s *DirectoryService) List(ctx context.Context, query dto.CoordinatorQuery) ([]models.CoordinatorEntry, error) {
	filter := models.CoordinatorFilter{Course: query.Course}
	if status := strings.TrimSpace(query.Status); status != "" {
		filter.Status = []models.CoordinatorStatus{models.CoordinatorStatus(strings.ToLower(status))}
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list coordinators")
	}
	return entries, nil
}

// Get returns one entry.
func (s *DirectoryService) Get(ctx context.Context, id string) (*models.CoordinatorEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "coordinator_id", id)
		}
		return nil, internalError(err, "failed to load coordinator")
	}
	return entry, nil
}

// Create adds an entry. Entries created by finance staff default to approved.
func (s *DirectoryService) Create(ctx context.Context, req dto.CoordinatorRequest, actorID int64) (*models.CoordinatorEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	entry := &models.CoordinatorEntry{
		Course:    strings.TrimSpace(req.Course),
		Director:  strings.TrimSpace(req.Director),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		UserID:    req.UserID,
		Status:    req.Status,
		CreatedBy: actorID,
	}
	if entry.Status == "" {
		entry.Status = models.CoordinatorStatusApproved
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, internalError(err, "failed to create coordinator")
	}
	s.invalidate(ctx)
	s.auditWrite(ctx, actorID, entry, nil)
	return entry, nil
}

// Update replaces an entry.
func (s *DirectoryService) Update(ctx context.Context, id string, req dto.CoordinatorRequest, actorID int64) (*models.CoordinatorEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *existing
	existing.Course = strings.TrimSpace(req.Course)
	existing.Director = strings.TrimSpace(req.Director)
	existing.Email = strings.ToLower(strings.TrimSpace(req.Email))
	existing.UserID = req.UserID
	if req.Status != "" {
		existing.Status = req.Status
	}
	existing.UpdatedBy = int64Ptr(actorID)
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "coordinator_id", id)
		}
		return nil, internalError(err, "failed to update coordinator")
	}
	s.invalidate(ctx)
	s.auditWrite(ctx, actorID, existing, &before)
	return existing, nil
}

// Delete removes an entry. Requests already bound to it keep their snapshot.
func (s *DirectoryService) Delete(ctx context.Context, id string, actorID int64) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.WithDetails(appErrors.ErrNotFound, "coordinator_id", id)
		}
		return internalError(err, "failed to delete coordinator")
	}
	s.invalidate(ctx)
	s.auditWrite(ctx, actorID, nil, existing)
	return nil
}

// Approved returns the approved entries, served from cache when possible.
func (s *DirectoryService) Approved(ctx context.Context) ([]models.CoordinatorEntry, error) {
	var entries []models.CoordinatorEntry
	if s.cache.Get(ctx, directoryApprovedCacheKey, &entries) {
		return entries, nil
	}
	entries, err := s.repo.List(ctx, models.CoordinatorFilter{Status: []models.CoordinatorStatus{models.CoordinatorStatusApproved}})
	if err != nil {
		return nil, internalError(err, "failed to load coordinator directory")
	}
	s.cache.Set(ctx, directoryApprovedCacheKey, entries, s.cacheTTL)
	return entries, nil
}

// Index builds a lookup index over the approved entries. Callers build one per
// operation and drop it afterwards.
func (s *DirectoryService) Index(ctx context.Context) (*CourseIndex, error) {
	entries, err := s.Approved(ctx)
	if err != nil {
		return nil, err
	}
	return NewCourseIndex(entries), nil
}

func (s *DirectoryService) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, directoryApprovedCacheKey)
}

func (s *DirectoryService) auditWrite(ctx context.Context, actorID int64, after, before *models.CoordinatorEntry) {
	entry := &models.AuditLog{UserID: int64Ptr(actorID), Action: models.AuditActionCoordinatorWrite, Resource: "coordinator"}
	if after != nil {
		entry.ResourceID = stringPtr(after.ID)
		entry.NewValues, _ = json.Marshal(after)
	}
	if before != nil {
		entry.ResourceID = stringPtr(before.ID)
		entry.OldValues, _ = json.Marshal(before)
	}
	emitAudit(ctx, s.audit, s.logger, "directory-service", entry)
}

// CourseIndex answers coordinator lookups over a fixed set of approved entries.
type CourseIndex struct {
	byID    map[string]models.CoordinatorEntry
	byKey   map[models.DirectorKey][]models.CoordinatorEntry
	byUser  map[int64][]models.CoordinatorEntry
	byEmail map[string][]models.CoordinatorEntry
}

// NewCourseIndex indexes the given entries. Entries that are not approved are ignored.
func NewCourseIndex(entries []models.CoordinatorEntry) *CourseIndex {
	idx := &CourseIndex{
		byID:    make(map[string]models.CoordinatorEntry, len(entries)),
		byKey:   make(map[models.DirectorKey][]models.CoordinatorEntry),
		byUser:  make(map[int64][]models.CoordinatorEntry),
		byEmail: make(map[string][]models.CoordinatorEntry),
	}
	for _, entry := range entries {
		if entry.Status != models.CoordinatorStatusApproved {
			continue
		}
		idx.byID[entry.ID] = entry
		if key := entry.Key(); !key.IsZero() {
			idx.byKey[key] = append(idx.byKey[key], entry)
		}
		if uid := entry.UserIDValue(); uid > 0 {
			idx.byUser[uid] = append(idx.byUser[uid], entry)
		}
		if email := strings.ToLower(strings.TrimSpace(entry.Email)); email != "" {
			idx.byEmail[email] = append(idx.byEmail[email], entry)
		}
	}
	return idx
}

// ByID resolves an entry by directory id.
func (idx *CourseIndex) ByID(id string) models.CoordinatorLookup {
	if entry, ok := idx.byID[id]; ok {
		return unique(entry)
	}
	return models.CoordinatorLookup{Status: models.LookupNotFound}
}

// ByKey resolves an entry by director and course.
func (idx *CourseIndex) ByKey(key models.DirectorKey) models.CoordinatorLookup {
	return lookupOf(idx.byKey[key])
}

// ByIdentity resolves the coordinator a portal user is. The user id wins over the
// email when both are known.
func (idx *CourseIndex) ByIdentity(userID int64, email string) models.CoordinatorLookup {
	if userID > 0 {
		if matches := idx.byUser[userID]; len(matches) > 0 {
			return lookupOf(matches)
		}
	}
	return lookupOf(idx.byEmail[strings.ToLower(strings.TrimSpace(email))])
}

// ResolveRecipient looks up the directory entry a coordinator recipient stands
// for. A parseable director key wins over the user id and email.
func (idx *CourseIndex) ResolveRecipient(r models.Recipient) models.CoordinatorLookup {
	if key, ok := models.ParseDirectorKey(r.DirectorKey); ok {
		return idx.ByKey(key)
	}
	return idx.ByIdentity(r.UserID, r.Email)
}

// withEntry fills the director fields of a recipient from its directory entry.
func withEntry(r models.Recipient, entry models.CoordinatorEntry) models.Recipient {
	r.DirectorKey = entry.Key().String()
	r.DirectorName = entry.Director
	r.Course = entry.Course
	if r.Name == "" {
		r.Name = entry.Director
	}
	if r.Email == "" {
		r.Email = entry.Email
	}
	if r.UserID == 0 {
		r.UserID = entry.UserIDValue()
	}
	return r
}

func candidateIDs(candidates []models.CoordinatorEntry) string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

func lookupOf(matches []models.CoordinatorEntry) models.CoordinatorLookup {
	switch len(matches) {
	case 0:
		return models.CoordinatorLookup{Status: models.LookupNotFound}
	case 1:
		return unique(matches[0])
	default:
		return models.CoordinatorLookup{Status: models.LookupAmbiguous, Candidates: append([]models.CoordinatorEntry(nil), matches...)}
	}
}

func unique(entry models.CoordinatorEntry) models.CoordinatorLookup {
	return models.CoordinatorLookup{Status: models.LookupUnique, Entry: &entry}
}
