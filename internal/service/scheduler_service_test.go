package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/dto"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

type memEventStore struct {
	events map[string]models.ScheduledEvent
	seq    int
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[string]models.ScheduledEvent)}
}

func (m *memEventStore) List(ctx context.Context) ([]models.ScheduledEvent, error) {
	out := make([]models.ScheduledEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEventStore) ListForRecipient(ctx context.Context, filter models.ScheduledEventFilter) ([]models.ScheduledEvent, error) {
	// coarse prefilter; the service refines by recipient
	return m.List(ctx)
}

func (m *memEventStore) GetByID(ctx context.Context, id string) (*models.ScheduledEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memEventStore) Create(ctx context.Context, event *models.ScheduledEvent) error {
	m.seq++
	event.ID = "evt-" + itoa(m.seq)
	m.events[event.ID] = *event
	return nil
}

func (m *memEventStore) Upsert(ctx context.Context, event *models.ScheduledEvent) error {
	m.events[event.ID] = *event
	return nil
}

func (m *memEventStore) Update(ctx context.Context, event *models.ScheduledEvent) error {
	if _, ok := m.events[event.ID]; !ok {
		return sql.ErrNoRows
	}
	m.events[event.ID] = *event
	return nil
}

func (m *memEventStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.events, id)
	return nil
}

func newTestScheduler() (*SchedulerService, *memEventStore) {
	store := newMemEventStore()
	return NewSchedulerService(store, staticIndexer{entries: testCoordinators()}, &memAudit{}, nil, nil), store
}

func TestValidateDate(t *testing.T) {
	require.NoError(t, ValidateDate("2024-02-29"))
	for _, bad := range []string{"2023-02-29", "2024-2-01", "01/02/2024", "2024-13-01", "", "2024-01-01T00:00:00Z"} {
		err := ValidateDate(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, appErrors.ErrValidation)
	}
}

func TestSchedulerCreateEnrichesAndDeduplicates(t *testing.T) {
	svc, _ := newTestScheduler()
	event, err := svc.Create(context.Background(), dto.CreateEventRequest{
		Date:  "2024-05-10",
		Title: "  Reunião  ",
		Recipients: []dto.RecipientInput{
			{Email: "ANA@usp.br", Group: models.RecipientGroupCoordinators},
			{UserID: 30, Group: models.RecipientGroupCoordinators},
			{Email: "ana@usp.br", Group: models.RecipientGroupProviders},
			{UserID: 101, Name: "Carlos", Group: models.RecipientGroupProviders},
		},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Reunião", event.Title)

	require.Len(t, event.Recipients, 3)
	coord := event.Recipients[0]
	assert.Equal(t, "user_30_coordinators", coord.Key)
	assert.Equal(t, "ana souza|cardiologia", coord.DirectorKey)
	assert.Equal(t, "Ana Souza", coord.DirectorName)
	assert.Equal(t, "Cardiologia", coord.Course)
	assert.Equal(t, "email_ana@usp.br_providers", event.Recipients[1].Key)
	assert.Equal(t, "user_101_providers", event.Recipients[2].Key)
}

func TestSchedulerCreateValidation(t *testing.T) {
	svc, _ := newTestScheduler()
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateEventRequest{Date: "2024-02-30", Title: "x", Recipients: []dto.RecipientInput{{UserID: 1, Group: models.RecipientGroupProviders}}}, 1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, dto.CreateEventRequest{Date: "2024-02-01", Title: "x"}, 1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, dto.CreateEventRequest{Date: "2024-02-01", Title: "x", Recipients: []dto.RecipientInput{{Name: "anon", Group: models.RecipientGroupProviders}}}, 1)
	require.Error(t, err)
	assert.Equal(t, "0", appErrors.FromError(err).Details["recipient_index"])
}

func TestSchedulerRejectsCoordinatorsOutsideApprovedDirectory(t *testing.T) {
	entries := append(testCoordinators(), models.CoordinatorEntry{ID: "coord-zed", Course: "Dermatologia", Director: "Zed", Email: "zed@usp.br", Status: models.CoordinatorStatusPending})
	store := newMemEventStore()
	svc := NewSchedulerService(store, staticIndexer{entries: entries}, &memAudit{}, nil, nil)
	ctx := context.Background()

	for _, email := range []string{"zed@usp.br", "nobody@x.com"} {
		_, err := svc.Create(ctx, dto.CreateEventRequest{Date: "2024-05-10", Title: "x", Recipients: []dto.RecipientInput{
			{UserID: 101, Group: models.RecipientGroupProviders},
			{Email: email, Group: models.RecipientGroupCoordinators},
		}}, 1)
		require.Error(t, err, email)
		assert.ErrorIs(t, err, appErrors.ErrValidation)
		assert.Equal(t, "1", appErrors.FromError(err).Details["recipient_index"])
	}

	_, err := svc.Create(ctx, dto.CreateEventRequest{Date: "2024-05-10", Title: "x", Recipients: []dto.RecipientInput{
		{DirectorKey: "caio|ortopedia", Group: models.RecipientGroupCoordinators},
	}}, 1)
	require.Error(t, err)
	assert.Equal(t, "coord-dup-1,coord-dup-2", appErrors.FromError(err).Details["candidates"])

	// providers are not checked against the directory
	event, err := svc.Create(ctx, dto.CreateEventRequest{Date: "2024-05-10", Title: "x", Recipients: []dto.RecipientInput{
		{Email: "Nobody@X.com", Group: models.RecipientGroupProviders},
	}}, 1)
	require.NoError(t, err)
	assert.Equal(t, "email_nobody@x.com_providers", event.Recipients[0].Key)
	assert.Len(t, store.events, 1)
}

func TestSchedulerListOrdersByDateThenTitle(t *testing.T) {
	svc, store := newTestScheduler()
	rcpt := models.RecipientList{{Key: "user_1_providers", UserID: 1, Group: models.RecipientGroupProviders}}
	store.events["a"] = models.ScheduledEvent{ID: "a", Date: "2024-03-02", Title: "B", Recipients: rcpt}
	store.events["b"] = models.ScheduledEvent{ID: "b", Date: "2024-03-01", Title: "Z", Recipients: rcpt}
	store.events["c"] = models.ScheduledEvent{ID: "c", Date: "2024-03-02", Title: "A", Recipients: rcpt}

	events, err := svc.List(context.Background())
	require.NoError(t, err)
	ids := []string{events[0].ID, events[1].ID, events[2].ID}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestSchedulerListForRecipient(t *testing.T) {
	svc, store := newTestScheduler()
	store.events["a"] = models.ScheduledEvent{ID: "a", Date: "2024-03-01", Title: "prov", Recipients: models.RecipientList{
		{Key: "email_carlos@mail.com_providers", Email: "carlos@mail.com", Group: models.RecipientGroupProviders},
	}}
	store.events["b"] = models.ScheduledEvent{ID: "b", Date: "2024-03-02", Title: "coord", Recipients: models.RecipientList{
		{Key: "user_7_coordinators", UserID: 7, Group: models.RecipientGroupCoordinators},
	}}

	events, err := svc.ListForRecipient(context.Background(), 7, "CARLOS@mail.com", "")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = svc.ListForRecipient(context.Background(), 7, "carlos@mail.com", models.RecipientGroupProviders)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].ID)

	events, err = svc.ListForRecipient(context.Background(), 0, "", "")
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = svc.ListForRecipient(context.Background(), 7, "", "admins")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSchedulerUpdateKeepsDateAndDeleteReportsMissing(t *testing.T) {
	svc, _ := newTestScheduler()
	ctx := context.Background()
	created, err := svc.Create(ctx, dto.CreateEventRequest{Date: "2024-05-10", Title: "x", Recipients: []dto.RecipientInput{{UserID: 1, Group: models.RecipientGroupProviders}}}, 1)
	require.NoError(t, err)

	msg := "novo texto"
	updated, err := svc.Update(ctx, created.ID, dto.UpdateEventRequest{Title: "y", Message: &msg, Recipients: []dto.RecipientInput{{UserID: 2, Group: models.RecipientGroupProviders}}}, 5)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10", updated.Date)
	assert.Equal(t, "y", updated.Title)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, int64(5), *updated.UpdatedBy)

	_, err = svc.Update(ctx, "missing", dto.UpdateEventRequest{Title: "y", Recipients: []dto.RecipientInput{{UserID: 2, Group: models.RecipientGroupProviders}}}, 5)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, created.ID, 5))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID, 5), appErrors.ErrNotFound)
}

func TestSchedulerUpsertRequiresRecipients(t *testing.T) {
	svc, store := newTestScheduler()
	err := svc.Upsert(context.Background(), &models.ScheduledEvent{ID: "faepa_pay_b1", Date: "2024-05-10", Title: "x"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	event := &models.ScheduledEvent{ID: "faepa_pay_b1", Date: "2024-05-10", Title: "x", Recipients: models.RecipientList{{Key: "user_1_providers", UserID: 1, Group: models.RecipientGroupProviders}}}
	require.NoError(t, svc.Upsert(context.Background(), event))
	require.NoError(t, svc.Upsert(context.Background(), event))
	assert.Len(t, store.events, 1)
}
