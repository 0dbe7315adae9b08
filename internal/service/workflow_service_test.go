package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/repository"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

// memRequestStore mirrors the conditional updates of the SQL repository.
type memRequestStore struct {
	mu           sync.Mutex
	rows         map[string]models.PaymentRequest
	forwardCalls int
	notifyCalls  int
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{rows: make(map[string]models.PaymentRequest)}
}

func (m *memRequestStore) CreateBatch(ctx context.Context, requests []*models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range requests {
		m.rows[r.ID] = *r
	}
	return nil
}

func (m *memRequestStore) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memRequestStore) ListByBatch(ctx context.Context, batchID string) ([]models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentRequest
	for _, row := range m.rows {
		if row.BatchID == batchID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderName < out[j].ProviderName })
	return out, nil
}

func (m *memRequestStore) List(ctx context.Context, filter models.PaymentRequestFilter) ([]models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentRequest
	for _, row := range m.rows {
		if filter.ForwardedOnly && !row.FaepaForwarded {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchID != out[j].BatchID {
			return out[i].BatchID < out[j].BatchID
		}
		return out[i].ProviderName < out[j].ProviderName
	})
	return out, nil
}

func (m *memRequestStore) ListAll(ctx context.Context) ([]models.PaymentRequest, error) {
	return m.List(ctx, models.PaymentRequestFilter{})
}

func (m *memRequestStore) Decide(ctx context.Context, p repository.DecideParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[p.ID]
	if !ok || row.Status != models.PaymentStatusPending {
		return sql.ErrNoRows
	}
	row.Status = p.Status
	row.DecisionAt = &p.DecidedAt
	row.DecisionNote = p.Note
	row.DecidedBy = &p.DecidedBy
	m.rows[p.ID] = row
	return nil
}

func (m *memRequestStore) ForwardBatch(ctx context.Context, p repository.ForwardParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwardCalls++
	var n int64
	for id, row := range m.rows {
		if row.BatchID == p.BatchID && !row.FaepaForwarded {
			at := p.ForwardedAt
			row.FaepaForwarded = true
			row.FaepaForwardedAt = &at
			row.FaepaForwardedBy = &p.ForwardedBy
			row.FaepaForwardedNote = p.Note
			m.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (m *memRequestStore) MarkPaid(ctx context.Context, p repository.MarkPaidParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[p.ID]
	if !ok || row.Status != models.PaymentStatusApproved || row.FaepaPaid {
		return sql.ErrNoRows
	}
	at := p.PaidAt
	row.FaepaPaid = true
	row.FaepaPaidAt = &at
	row.FaepaPaidBy = &p.PaidBy
	row.FaepaPaymentNote = p.Note
	row.FaepaPaymentAttachment = p.Attachment
	m.rows[p.ID] = row
	return nil
}

func (m *memRequestStore) MarkNotified(ctx context.Context, p repository.MarkNotifiedParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyCalls++
	var n int64
	for _, id := range p.IDs {
		row, ok := m.rows[id]
		if !ok || row.Status != models.PaymentStatusApproved || !row.FaepaPaid || row.FaepaPaymentNotified {
			continue
		}
		at := p.NotifiedAt
		row.FaepaPaymentNotified = true
		row.FaepaPaymentNotifiedAt = &at
		row.FaepaPaymentNotifyNote = p.Note
		m.rows[id] = row
		n++
	}
	return n, nil
}

func (m *memRequestStore) set(id string, mutate func(*models.PaymentRequest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	mutate(&row)
	m.rows[id] = row
}

type memSubmissions map[string]models.ProviderSubmission

func (m memSubmissions) GetByIDs(ctx context.Context, ids []string) (map[string]models.ProviderSubmission, error) {
	out := make(map[string]models.ProviderSubmission)
	for _, id := range ids {
		if sub, ok := m[id]; ok {
			out[id] = sub
		}
	}
	return out, nil
}

type staticIndexer struct {
	entries []models.CoordinatorEntry
}

func (s staticIndexer) Index(ctx context.Context) (*CourseIndex, error) {
	return NewCourseIndex(s.entries), nil
}

type recordingDispatcher struct {
	calls   [][]models.PaymentRequest
	notes   []*string
	outcome DispatchOutcome
	err     error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, items []models.PaymentRequest, note *string) (DispatchOutcome, error) {
	d.calls = append(d.calls, items)
	d.notes = append(d.notes, note)
	if d.err != nil {
		return DispatchOutcome{}, d.err
	}
	return d.outcome, nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memAudit) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for _, l := range a.logs {
		if l.Resource == resource && l.ResourceID != nil && *l.ResourceID == resourceID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}

type workflowFixture struct {
	svc        *WorkflowService
	store      *memRequestStore
	dispatcher *recordingDispatcher
	audit      *memAudit
}

var (
	financeActor     = &models.JWTClaims{UserID: 1, Role: models.RoleFinance, Email: "financeiro@faepa.br"}
	faepaActor       = &models.JWTClaims{UserID: 2, Role: models.RoleFaepa, Email: "pagamentos@faepa.br"}
	coordinatorActor = &models.JWTClaims{UserID: 30, Role: models.RoleCoordinator, Email: "ana@usp.br"}
)

func testCoordinators() []models.CoordinatorEntry {
	uid := int64(30)
	return []models.CoordinatorEntry{
		{ID: "coord-ana", Course: "Cardiologia", Director: "Ana Souza", Email: "ana@usp.br", UserID: &uid, Status: models.CoordinatorStatusApproved},
		{ID: "coord-bia", Course: "Pediatria", Director: "Bia Lima", Email: "bia@usp.br", Status: models.CoordinatorStatusApproved},
		{ID: "coord-dup-1", Course: "Ortopedia", Director: "Caio", Email: "caio1@usp.br", Status: models.CoordinatorStatusApproved},
		{ID: "coord-dup-2", Course: "ortopedia ", Director: "caio", Email: "caio2@usp.br", Status: models.CoordinatorStatusApproved},
	}
}

func testSubmissions() memSubmissions {
	return memSubmissions{
		"sub-1": {ID: "sub-1", Name: "Carlos Prestador", Email: "Carlos@Mail.com", UserID: 101, Value: decimal.NewNullDecimal(decimal.RequireFromString("1500.00")), Director: "Ana Souza", Course: "Cardiologia"},
		"sub-2": {ID: "sub-2", Name: "Daniela Prestadora", Email: "dani@mail.com", UserID: 102, Value: decimal.NewNullDecimal(decimal.RequireFromString("800.50")), Director: "ana souza", Course: "CARDIOLOGIA"},
		"sub-3": {ID: "sub-3", Name: "Eduardo", Email: "edu@mail.com", Director: "Bia Lima", Course: "Pediatria"},
		"sub-4": {ID: "sub-4", Name: "Fabio", Email: "fabio@mail.com", Director: "Caio", Course: "Ortopedia"},
	}
}

func newWorkflowFixture(t *testing.T, autoNotify bool) *workflowFixture {
	t.Helper()
	store := newMemRequestStore()
	dispatcher := &recordingDispatcher{outcome: DispatchOutcome{EventID: "faepa_pay_x", MailSent: 3, PortalTargets: 3}}
	audit := &memAudit{}
	svc := NewWorkflowService(WorkflowDeps{
		Requests:    store,
		Submissions: testSubmissions(),
		Directory:   staticIndexer{entries: testCoordinators()},
		Dispatcher:  dispatcher,
		Audit:       audit,
		Trail:       audit,
		Metrics:     NewMetricsService(),
		Logger:      zap.NewNop(),
		AutoNotify:  autoNotify,
	})
	return &workflowFixture{svc: svc, store: store, dispatcher: dispatcher, audit: audit}
}

func (f *workflowFixture) createBatch(t *testing.T, submissionIDs ...string) *dto.CreateBatchResponse {
	t.Helper()
	items := make([]dto.CreateBatchItem, len(submissionIDs))
	for i, id := range submissionIDs {
		items[i] = dto.CreateBatchItem{SubmissionID: id}
	}
	resp, err := f.svc.CreateBatch(context.Background(), dto.CreateBatchRequest{Items: items, NoteTitle: "Março"}, financeActor.UserID)
	require.NoError(t, err)
	return resp
}

func (f *workflowFixture) decide(t *testing.T, id string, status models.PaymentStatus) {
	t.Helper()
	_, err := f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: status}, coordinatorActor)
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, sentinel *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel), "expected %s, got %v", sentinel.Code, err)
}

func TestCreateBatchSnapshotsSubmissions(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1", "sub-2")

	require.Len(t, resp.Requests, 2)
	assert.NotEmpty(t, resp.BatchID)
	for _, r := range resp.Requests {
		assert.Equal(t, resp.BatchID, r.BatchID)
		assert.Equal(t, models.PaymentStatusPending, r.Status)
		assert.Equal(t, "ana souza|cardiologia", r.CoordinatorKey)
		assert.Equal(t, int64(30), r.CoordinatorUserID)
		assert.Equal(t, "Cardiologia", r.Course)
		assert.Equal(t, models.SnapshotVersion, r.SnapshotPayment.Version)
		assert.Equal(t, "Março", r.NoteTitle)
	}
	assert.Equal(t, "carlos@mail.com", resp.Requests[0].ProviderEmail)
	assert.Contains(t, f.audit.actions(), models.AuditActionBatchCreate)
}

func TestCreateBatchRejectsUnresolvableCoordinators(t *testing.T) {
	f := newWorkflowFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, dto.CreateBatchRequest{Items: []dto.CreateBatchItem{{SubmissionID: "sub-1"}, {SubmissionID: "sub-3"}}}, 1)
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.CreateBatch(ctx, dto.CreateBatchRequest{Items: []dto.CreateBatchItem{{SubmissionID: "sub-4"}}}, 1)
	requireCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "coord-dup-1,coord-dup-2", appErrors.FromError(err).Details["candidates"])

	_, err = f.svc.CreateBatch(ctx, dto.CreateBatchRequest{Items: []dto.CreateBatchItem{{SubmissionID: "missing"}}}, 1)
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.CreateBatch(ctx, dto.CreateBatchRequest{Items: []dto.CreateBatchItem{{SubmissionID: "sub-1"}, {SubmissionID: "sub-1"}}}, 1)
	requireCode(t, err, appErrors.ErrValidation)

	assert.Empty(t, f.store.rows)
}

func TestCreateBatchExplicitCoordinatorWins(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp, err := f.svc.CreateBatch(context.Background(), dto.CreateBatchRequest{Items: []dto.CreateBatchItem{
		{SubmissionID: "sub-4", CoordinatorID: "coord-bia"},
	}}, 1)
	require.NoError(t, err)
	assert.Equal(t, "bia@usp.br", resp.Requests[0].CoordinatorEmail)
}

func TestDecideAllowsOneDecisionOnly(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1")
	id := resp.Requests[0].ID

	decided, err := f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: models.PaymentStatusApproved}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, decided.Status)
	require.NotNil(t, decided.DecisionAt)

	_, err = f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: models.PaymentStatusRejected}, coordinatorActor)
	requireCode(t, err, appErrors.ErrInvalidState)

	stored, _ := f.store.GetByID(context.Background(), id)
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
}

func TestDecideConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newWorkflowFixture(t, true)
	id := f.createBatch(t, "sub-1").Requests[0].ID

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		status := models.PaymentStatusApproved
		if i%2 == 1 {
			status = models.PaymentStatusRejected
		}
		wg.Add(1)
		go func(st models.PaymentStatus) {
			defer wg.Done()
			_, err := f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: st}, coordinatorActor)
			results <- err
		}(status)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		requireCode(t, err, appErrors.ErrInvalidState)
	}
	assert.Equal(t, 1, wins)
}

func TestDecideChecksRequestOwnerAndExistence(t *testing.T) {
	f := newWorkflowFixture(t, true)
	id := f.createBatch(t, "sub-1").Requests[0].ID

	other := &models.JWTClaims{UserID: 99, Role: models.RoleCoordinator, Email: "outro@usp.br"}
	_, err := f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: models.PaymentStatusApproved}, other)
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Decide(context.Background(), "nope", dto.DecisionRequest{Status: models.PaymentStatusApproved}, coordinatorActor)
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: models.PaymentStatusPending}, coordinatorActor)
	requireCode(t, err, appErrors.ErrValidation)
}

func TestForwardRequiresFullyDecidedBatch(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)

	_, err := f.svc.ForwardBatchToFinance(context.Background(), resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	requireCode(t, err, appErrors.ErrIncompleteBatch)
	assert.Equal(t, "1", appErrors.FromError(err).Details["pending"])

	items, _ := f.store.ListByBatch(context.Background(), resp.BatchID)
	for _, item := range items {
		assert.False(t, item.FaepaForwarded)
	}
	assert.Zero(t, f.store.forwardCalls)
}

func TestBlockedForwardSucceedsOnceDecided(t *testing.T) {
	f := newWorkflowFixture(t, true)
	ctx := context.Background()
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)

	_, err := f.svc.ForwardBatchToFinance(ctx, resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	requireCode(t, err, appErrors.ErrIncompleteBatch)

	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)
	summary, err := f.svc.ForwardBatchToFinance(ctx, resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	require.NoError(t, err)
	assert.True(t, summary.Forwarded)
	assert.Zero(t, summary.Pending)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, f.store.forwardCalls)
}

func TestForwardIsIdempotent(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)

	note := "segue lote"
	first, err := f.svc.ForwardBatchToFinance(context.Background(), resp.BatchID, dto.ForwardRequest{Note: &note}, financeActor.UserID)
	require.NoError(t, err)
	require.True(t, first.Forwarded)
	stamp := *first.ForwardedAt

	second, err := f.svc.ForwardBatchToFinance(context.Background(), resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	require.NoError(t, err)
	assert.Equal(t, stamp, *second.ForwardedAt)
	assert.Equal(t, 1, f.store.forwardCalls)

	items, _ := f.store.ListByBatch(context.Background(), resp.BatchID)
	for _, item := range items {
		assert.True(t, item.FaepaForwarded)
		require.NotNil(t, item.FaepaForwardedNote)
		assert.Equal(t, note, *item.FaepaForwardedNote)
	}
}

func TestAllRejectedBatchCannotProceed(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusRejected)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)

	_, err := f.svc.ForwardBatchToFinance(context.Background(), resp.BatchID, dto.ForwardRequest{}, 1)
	requireCode(t, err, appErrors.ErrNoApprovedItems)

	_, err = f.svc.SendPaymentNotifications(context.Background(), resp.BatchID, dto.NotifyRequest{}, 1)
	requireCode(t, err, appErrors.ErrNoApprovedItems)
	assert.Empty(t, f.dispatcher.calls)
}

func TestMarkPaidRequiresApproval(t *testing.T) {
	f := newWorkflowFixture(t, true)
	resp := f.createBatch(t, "sub-1", "sub-2")

	_, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrInvalidState)

	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)
	_, err = f.svc.MarkPaid(context.Background(), resp.Requests[1].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrInvalidState)

	_, err = f.svc.MarkPaid(context.Background(), "missing", dto.MarkPaidRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestMarkPaidTwiceKeepsFirstStamp(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1")
	id := resp.Requests[0].ID
	f.decide(t, id, models.PaymentStatusApproved)

	first, err := f.svc.MarkPaid(context.Background(), id, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	paidAt := *first.Request.FaepaPaidAt

	f.svc.now = func() time.Time { return paidAt.Add(time.Hour) }
	second, err := f.svc.MarkPaid(context.Background(), id, dto.MarkPaidRequest{}, 77)
	require.NoError(t, err)
	assert.Equal(t, paidAt, *second.Request.FaepaPaidAt)
	assert.Equal(t, faepaActor.UserID, *second.Request.FaepaPaidBy)
	assert.False(t, second.AutoNotified)
}

func TestSendNotificationsRequiresAllApprovedPaid(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusApproved)
	_, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)

	_, err = f.svc.SendPaymentNotifications(context.Background(), resp.BatchID, dto.NotifyRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrUnpaidItems)
	assert.Equal(t, "1", appErrors.FromError(err).Details["unpaid"])
	assert.Empty(t, f.dispatcher.calls)
	assert.Zero(t, f.store.notifyCalls)

	_, err = f.svc.SendPaymentNotifications(context.Background(), "missing", dto.NotifyRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestSendNotificationsConverges(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)
	_, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)

	note := "pago via PIX"
	first, err := f.svc.SendPaymentNotifications(context.Background(), resp.BatchID, dto.NotifyRequest{Note: &note}, faepaActor.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Marked)
	assert.Equal(t, 1, first.NotifiedCount)
	assert.Equal(t, 1, first.ApprovedCount)
	assert.False(t, first.AlreadyDone)
	require.Len(t, f.dispatcher.calls, 1)
	require.Len(t, f.dispatcher.calls[0], 1)
	assert.Equal(t, resp.Requests[0].ID, f.dispatcher.calls[0][0].ID)

	second, err := f.svc.SendPaymentNotifications(context.Background(), resp.BatchID, dto.NotifyRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyDone)
	assert.Len(t, f.dispatcher.calls, 1)

	stored, _ := f.store.GetByID(context.Background(), resp.Requests[0].ID)
	assert.True(t, stored.FaepaPaymentNotified)
	require.NotNil(t, stored.FaepaPaymentNotifyNote)
	assert.Equal(t, note, *stored.FaepaPaymentNotifyNote)
	rejected, _ := f.store.GetByID(context.Background(), resp.Requests[1].ID)
	assert.False(t, rejected.FaepaPaymentNotified)
}

func TestDispatchFailureMarksNothing(t *testing.T) {
	f := newWorkflowFixture(t, false)
	f.dispatcher.err = appErrors.WithDetails(appErrors.ErrDispatch, "batch_id", "x")
	resp := f.createBatch(t, "sub-1")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	_, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)

	_, err = f.svc.SendPaymentNotifications(context.Background(), resp.BatchID, dto.NotifyRequest{}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrDispatch)

	stored, _ := f.store.GetByID(context.Background(), resp.Requests[0].ID)
	assert.False(t, stored.FaepaPaymentNotified)
	assert.Zero(t, f.store.notifyCalls)
}

func TestHappyPathAutoNotifiesOnLastPayment(t *testing.T) {
	f := newWorkflowFixture(t, true)
	ctx := context.Background()
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusApproved)

	summary, err := f.svc.ForwardBatchToFinance(ctx, resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Approved)

	first, err := f.svc.MarkPaid(ctx, resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	assert.False(t, first.AutoNotified)
	assert.Empty(t, f.dispatcher.calls)

	last, err := f.svc.MarkPaid(ctx, resp.Requests[1].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	assert.True(t, last.AutoNotified)
	require.NotNil(t, last.Notification)
	assert.Equal(t, 2, last.Notification.Marked)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Nil(t, f.dispatcher.notes[0])

	detail, err := f.svc.GetBatch(ctx, resp.BatchID, financeActor)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Summary.PaidCount)
	assert.Equal(t, 2, detail.Summary.NotifiedCount)
	assert.False(t, detail.Summary.AutoNotifyEligible())

	auto, err := f.svc.EvaluateAutoNotify(ctx, resp.Requests[0].ID)
	require.NoError(t, err)
	assert.False(t, auto.Triggered)

	actions := f.audit.actions()
	assert.Contains(t, actions, models.AuditActionBatchForward)
	assert.Contains(t, actions, models.AuditActionRequestPay)
	assert.Contains(t, actions, models.AuditActionBatchNotify)
}

func TestManualNotifyAfterAutoNotifyReportsConvergedCounts(t *testing.T) {
	f := newWorkflowFixture(t, true)
	ctx := context.Background()
	resp := f.createBatch(t, "sub-1", "sub-2")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)
	f.decide(t, resp.Requests[1].ID, models.PaymentStatusRejected)

	summary, err := f.svc.ForwardBatchToFinance(ctx, resp.BatchID, dto.ForwardRequest{}, financeActor.UserID)
	require.NoError(t, err)
	assert.Zero(t, summary.Pending)
	assert.Equal(t, 1, summary.Approved)

	paid, err := f.svc.MarkPaid(ctx, resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	require.True(t, paid.AutoNotified)
	require.NotNil(t, paid.Notification)
	assert.Equal(t, 1, paid.Notification.NotifiedCount)
	assert.Equal(t, 1, paid.Notification.ApprovedCount)

	manual, err := f.svc.SendPaymentNotifications(ctx, resp.BatchID, dto.NotifyRequest{}, financeActor.UserID)
	require.NoError(t, err)
	assert.True(t, manual.AlreadyDone)
	assert.Equal(t, 1, manual.NotifiedCount)
	assert.Equal(t, 1, manual.ApprovedCount)
	assert.Zero(t, manual.Marked)
	assert.Len(t, f.dispatcher.calls, 1)
}

func TestMarkPaidDoesNotWaitForForward(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1")
	id := resp.Requests[0].ID
	f.decide(t, id, models.PaymentStatusApproved)

	out, err := f.svc.MarkPaid(context.Background(), id, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	assert.True(t, out.Request.FaepaPaid)
	assert.False(t, out.Request.FaepaForwarded)
}

func TestAutoNotifyFailureKeepsPayment(t *testing.T) {
	f := newWorkflowFixture(t, true)
	f.dispatcher.err = appErrors.WithDetails(appErrors.ErrDispatch, "batch_id", "x")
	resp := f.createBatch(t, "sub-1")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)

	out, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	require.NotNil(t, out.AutoNotifyError)
	assert.Equal(t, appErrors.ErrDispatch.Code, out.AutoNotifyError.Code)
	assert.True(t, out.Request.FaepaPaid)

	stored, _ := f.store.GetByID(context.Background(), resp.Requests[0].ID)
	assert.True(t, stored.FaepaPaid)
	assert.False(t, stored.FaepaPaymentNotified)
}

func TestAutoNotifyDisabled(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1")
	f.decide(t, resp.Requests[0].ID, models.PaymentStatusApproved)

	out, err := f.svc.MarkPaid(context.Background(), resp.Requests[0].ID, dto.MarkPaidRequest{}, faepaActor.UserID)
	require.NoError(t, err)
	assert.False(t, out.AutoNotified)
	assert.Empty(t, f.dispatcher.calls)
}

func TestMarkPaidRejectsUnknownAttachment(t *testing.T) {
	f := newWorkflowFixture(t, false)
	f.svc.attachments = existsOnly{"receipts/ok.pdf": true}
	resp := f.createBatch(t, "sub-1")
	id := resp.Requests[0].ID
	f.decide(t, id, models.PaymentStatusApproved)

	missing := "receipts/nope.pdf"
	_, err := f.svc.MarkPaid(context.Background(), id, dto.MarkPaidRequest{AttachmentRef: &missing}, faepaActor.UserID)
	requireCode(t, err, appErrors.ErrValidation)

	ok := "receipts/ok.pdf"
	out, err := f.svc.MarkPaid(context.Background(), id, dto.MarkPaidRequest{AttachmentRef: &ok}, faepaActor.UserID)
	require.NoError(t, err)
	require.NotNil(t, out.Request.FaepaPaymentAttachment)
	assert.Equal(t, ok, *out.Request.FaepaPaymentAttachment)
}

type existsOnly map[string]bool

func (e existsOnly) Exists(ref string) bool { return e[ref] }

func TestVisibilityByRole(t *testing.T) {
	f := newWorkflowFixture(t, true)
	ctx := context.Background()
	resp := f.createBatch(t, "sub-1", "sub-2")
	id := resp.Requests[0].ID

	provider := &models.JWTClaims{UserID: 101, Role: models.RoleProvider}
	detail, err := f.svc.GetRequest(ctx, id, provider)
	require.NoError(t, err)
	assert.Equal(t, "R$ 1.500,00", detail.ProviderValue)

	otherProvider := &models.JWTClaims{UserID: 555, Role: models.RoleProvider, Email: "x@mail.com"}
	_, err = f.svc.GetRequest(ctx, id, otherProvider)
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.svc.GetRequest(ctx, id, faepaActor)
	requireCode(t, err, appErrors.ErrForbidden)
	_, err = f.svc.GetBatch(ctx, resp.BatchID, faepaActor)
	requireCode(t, err, appErrors.ErrNotFound)

	summaries, err := f.svc.ListBatches(ctx, dto.BatchListQuery{}, faepaActor)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	summaries, err = f.svc.ListBatches(ctx, dto.BatchListQuery{}, financeActor)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Pending)

	_, err = f.svc.GetBatch(ctx, resp.BatchID, coordinatorActor)
	require.NoError(t, err)
	stranger := &models.JWTClaims{UserID: 9, Role: models.RoleCoordinator, Email: "z@usp.br"}
	_, err = f.svc.GetBatch(ctx, resp.BatchID, stranger)
	requireCode(t, err, appErrors.ErrForbidden)
}

func TestCoordinatorInboxValidatesStatus(t *testing.T) {
	f := newWorkflowFixture(t, true)
	f.createBatch(t, "sub-1")

	_, err := f.svc.CoordinatorInbox(context.Background(), coordinatorActor, []models.PaymentStatus{"done"})
	requireCode(t, err, appErrors.ErrValidation)

	rows, err := f.svc.CoordinatorInbox(context.Background(), coordinatorActor, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDecideLostRaceReportsCurrentStatus(t *testing.T) {
	f := newWorkflowFixture(t, true)
	id := f.createBatch(t, "sub-1").Requests[0].ID
	racing := &racingStore{memRequestStore: f.store}
	f.svc.repo = racing

	_, err := f.svc.Decide(context.Background(), id, dto.DecisionRequest{Status: models.PaymentStatusApproved}, coordinatorActor)
	requireCode(t, err, appErrors.ErrInvalidState)
	assert.Equal(t, string(models.PaymentStatusRejected), appErrors.FromError(err).Details["status"])
}

// racingStore lets another decision land between the read and the update.
type racingStore struct {
	*memRequestStore
}

func (r *racingStore) Decide(ctx context.Context, p repository.DecideParams) error {
	r.set(p.ID, func(row *models.PaymentRequest) { row.Status = models.PaymentStatusRejected })
	return r.memRequestStore.Decide(ctx, p)
}

func TestRequestHistoryFollowsVisibility(t *testing.T) {
	f := newWorkflowFixture(t, false)
	resp := f.createBatch(t, "sub-1")
	id := resp.Requests[0].ID
	f.decide(t, id, models.PaymentStatusApproved)

	logs, err := f.svc.History(context.Background(), id, financeActor)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionRequestDecide, logs[0].Action)

	_, err = f.svc.History(context.Background(), id, faepaActor)
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.svc.History(context.Background(), "missing", financeActor)
	requireCode(t, err, appErrors.ErrNotFound)
}
