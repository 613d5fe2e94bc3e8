package moderation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportaciudad/internal/events"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"
)

// memReports mimics the conditional updates of the gorm repository.
type memReports struct {
	mu      sync.Mutex
	byID    map[string]*models.Report
	calls   int
	failErr error
}

func newMemReports(reports ...models.Report) *memReports {
	m := &memReports{byID: map[string]*models.Report{}}
	for i := range reports {
		r := reports[i]
		m.byID[r.ID] = &r
	}
	return m
}

func (m *memReports) Get(_ context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReports) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	_, ok := m.byID[id]
	return ok, nil
}

func (m *memReports) MarkValidated(_ context.Context, id, moderatorID, comments string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failErr != nil {
		return false, m.failErr
	}
	r, ok := m.byID[id]
	if !ok || !r.Pending() {
		return false, nil
	}
	r.Validated = true
	r.ModeratorComments = comments
	r.ModeratedBy = &moderatorID
	r.ModeratedAt = &at
	r.Version++
	return true, nil
}

func (m *memReports) MarkRejected(_ context.Context, id, moderatorID, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r, ok := m.byID[id]
	if !ok || !r.Pending() {
		return false, nil
	}
	r.Status = models.StatusRejected
	r.Validated = false
	r.RejectionReason = reason
	r.ModeratedBy = &moderatorID
	r.ModeratedAt = &at
	r.Version++
	return true, nil
}

func (m *memReports) UpdateStatus(_ context.Context, id string, from, to models.ReportStatus, moderatorID, comments string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	r, ok := m.byID[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	if to == models.StatusRejected {
		r.Validated = false
		r.RejectionReason = comments
	}
	r.Version++
	return true, nil
}

func (m *memReports) ListPending(_ context.Context, offset, limit int) ([]models.Report, int64, error) {
	return nil, 0, nil
}

func (m *memReports) Stats(context.Context, time.Time) (models.ReportStats, error) {
	return models.ReportStats{Total: int64(len(m.byID))}, nil
}

func (m *memReports) snapshot(id string) models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

type memUsers struct {
	byID  map[string]*models.User
	calls int
}

func (m *memUsers) Get(_ context.Context, id string) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Exists(_ context.Context, id string) (bool, error) {
	_, ok := m.byID[id]
	return ok, nil
}

func (m *memUsers) MarkValidated(_ context.Context, id, moderatorID, comments string, at time.Time) (bool, error) {
	m.calls++
	u, ok := m.byID[id]
	if !ok || !u.PendingValidation {
		return false, nil
	}
	u.Active = true
	u.PendingValidation = false
	u.ValidationComments = comments
	return true, nil
}

func (m *memUsers) MarkRejected(_ context.Context, id, moderatorID, reason string, at time.Time) (bool, error) {
	m.calls++
	u, ok := m.byID[id]
	if !ok || !u.PendingValidation {
		return false, nil
	}
	u.Active = false
	u.PendingValidation = false
	u.RejectionReason = reason
	return true, nil
}

func (m *memUsers) ListPending(_ context.Context, offset, limit int) ([]models.User, int64, error) {
	out := make([]models.User, 0)
	for _, u := range m.byID {
		if u.PendingValidation {
			out = append(out, *u)
		}
	}
	return out, int64(len(out)), nil
}

type sentNotification struct {
	userID string
	kind   models.NotificationType
	body   string
}

type memNotifier struct{ sent []sentNotification }

func (n *memNotifier) Notify(_ context.Context, userID string, t models.NotificationType, title, body string, reportID *string) error {
	n.sent = append(n.sent, sentNotification{userID: userID, kind: t, body: body})
	return nil
}

type memMailer struct{ validated, rejected []string }

func (m *memMailer) SendAccountValidated(email, name, comments string) {
	m.validated = append(m.validated, email)
}

func (m *memMailer) SendAccountRejected(email, name, reason string) {
	m.rejected = append(m.rejected, email+":"+reason)
}

type memEvents struct{ got []events.Event }

func (m *memEvents) Publish(_ context.Context, e events.Event) error {
	m.got = append(m.got, e)
	return nil
}

type fixture struct {
	svc      *Service
	reports  *memReports
	users    *memUsers
	notifier *memNotifier
	mailer   *memMailer
	events   *memEvents
}

func newFixture() *fixture {
	f := &fixture{
		reports: newMemReports(
			models.Report{ID: "r1", Title: "Hueco en la Calle 26", Status: models.StatusNew, UserID: "u-author", Version: 1},
			models.Report{ID: "r2", Title: "Luminaria apagada", Status: models.StatusInReview, UserID: "u-author", Version: 1},
		),
		users: &memUsers{byID: map[string]*models.User{
			"u1": {ID: "u1", Name: "Ana", Email: "ana@example.org", Role: models.RoleCitizen, PendingValidation: true},
		}},
		notifier: &memNotifier{},
		mailer:   &memMailer{},
		events:   &memEvents{},
	}
	f.svc = NewService(f.reports, f.users, f.notifier, f.mailer, f.events, zap.NewNop())
	return f
}

func TestValidateReportKeepsStatus(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ValidateReport(context.Background(), "mod-1", "r2", "  <b>Confirmado</b> en visita "))

	r := f.reports.snapshot("r2")
	assert.True(t, r.Validated)
	assert.Equal(t, models.StatusInReview, r.Status)
	assert.Equal(t, "Confirmado en visita", r.ModeratorComments)
	assert.Equal(t, 2, r.Version)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "u-author", f.notifier.sent[0].userID)
	assert.Equal(t, models.NotificationReportValidated, f.notifier.sent[0].kind)
	assert.Contains(t, f.notifier.sent[0].body, "Luminaria apagada")

	require.Len(t, f.events.got, 1)
	assert.Equal(t, events.ReportValidated, f.events.got[0].Type)
	assert.Equal(t, "r2", f.events.got[0].SubjectID)
	assert.Equal(t, "mod-1", f.events.got[0].ActorID)
}

func TestValidateReportTwiceIsAlreadyProcessed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.ValidateReport(ctx, "mod-1", "r1", ""))
	err := f.svc.ValidateReport(ctx, "mod-2", "r1", "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.True(t, IsConflict(err))
	assert.Len(t, f.events.got, 1)
}

func TestValidateUnknownReportIsNotFound(t *testing.T) {
	f := newFixture()
	err := f.svc.ValidateReport(context.Background(), "mod-1", "nope", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.events.got)
}

func TestValidateReportStoreError(t *testing.T) {
	f := newFixture()
	f.reports.failErr = errors.New("db down")
	err := f.svc.ValidateReport(context.Background(), "mod-1", "r1", "")
	assert.EqualError(t, err, "db down")
	assert.Empty(t, f.notifier.sent)
}

func TestRejectReportBlankReasonTouchesNothing(t *testing.T) {
	for _, reason := range []string{"", "   ", "\n\t", "<i></i>"} {
		f := newFixture()
		before := f.reports.snapshot("r1")

		err := f.svc.RejectReport(context.Background(), "mod-1", "r1", reason)
		assert.ErrorIs(t, err, ErrInvalidReason, "reason %q", reason)
		assert.True(t, IsValidation(err))
		assert.Zero(t, f.reports.calls, "store must not be called for reason %q", reason)
		assert.Equal(t, before, f.reports.snapshot("r1"))
		assert.Empty(t, f.events.got)
	}
}

func TestRejectReportTooLongReason(t *testing.T) {
	f := newFixture()
	err := f.svc.RejectReport(context.Background(), "mod-1", "r1", strings.Repeat("x", MaxReasonLength+1))
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.Zero(t, f.reports.calls)
}

func TestRejectReport(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.RejectReport(context.Background(), "mod-1", "r1", "  Reporte duplicado "))

	r := f.reports.snapshot("r1")
	assert.Equal(t, models.StatusRejected, r.Status)
	assert.False(t, r.Validated)
	assert.Equal(t, "Reporte duplicado", r.RejectionReason)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationReportRejected, f.notifier.sent[0].kind)
	assert.Contains(t, f.notifier.sent[0].body, "Reporte duplicado")

	err := f.svc.RejectReport(context.Background(), "mod-1", "r1", "otra vez")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestValidatedReportCannotBeRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.svc.ValidateReport(ctx, "mod-1", "r1", ""))
	assert.ErrorIs(t, f.svc.RejectReport(ctx, "mod-2", "r1", "spam"), ErrAlreadyProcessed)
}

func TestUpdateReportStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusInReview, "cuadrilla asignada"))
	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusInProgress, ""))
	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusResolved, ""))
	assert.Equal(t, models.StatusResolved, f.reports.snapshot("r1").Status)
	assert.Len(t, f.events.got, 3)
	assert.Len(t, f.notifier.sent, 3)

	err := f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusInProgress, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateReportStatusErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", "archivado", ""), ErrInvalidStatus)
	assert.ErrorIs(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusResolved, ""), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.UpdateReportStatus(ctx, "mod-1", "missing", models.StatusInReview, ""), ErrNotFound)
}

func TestRejectThroughStatusNeedsReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.ValidateReport(ctx, "mod-1", "r2", ""))
	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r2", models.StatusInProgress, ""))

	for _, blank := range []string{"", "   "} {
		assert.ErrorIs(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r2", models.StatusRejected, blank), ErrInvalidReason)
	}
	got := f.reports.snapshot("r2")
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.True(t, got.Validated)

	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r2", models.StatusRejected, "  Duplicado  "))
	got = f.reports.snapshot("r2")
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.False(t, got.Validated)
	assert.Equal(t, "Duplicado", got.RejectionReason)
}

func TestClosedReportIsNoLongerPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.UpdateReportStatus(ctx, "mod-1", "r1", models.StatusClosed, ""))
	assert.ErrorIs(t, f.svc.ValidateReport(ctx, "mod-1", "r1", ""), ErrAlreadyProcessed)
	assert.ErrorIs(t, f.svc.RejectReport(ctx, "mod-1", "r1", "spam"), ErrAlreadyProcessed)

	got := f.reports.snapshot("r1")
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.False(t, got.Validated)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StatusNew, models.StatusInReview))
	assert.True(t, CanTransition(models.StatusNew, models.StatusClosed))
	assert.True(t, CanTransition(models.StatusInReview, models.StatusClosed))
	assert.True(t, CanTransition(models.StatusInProgress, models.StatusRejected))
	assert.False(t, CanTransition(models.StatusNew, models.StatusResolved))
	assert.False(t, CanTransition(models.StatusInReview, models.StatusNew))

	for _, terminal := range []models.ReportStatus{models.StatusResolved, models.StatusClosed, models.StatusRejected} {
		assert.True(t, terminal.Terminal())
		assert.Empty(t, NextStates(terminal))
	}
}

func TestValidateUser(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ValidateUser(context.Background(), "admin-1", "u1", "documento verificado"))

	u := f.users.byID["u1"]
	assert.True(t, u.Active)
	assert.False(t, u.PendingValidation)
	assert.Equal(t, []string{"ana@example.org"}, f.mailer.validated)
	require.Len(t, f.events.got, 1)
	assert.Equal(t, events.UserValidated, f.events.got[0].Type)

	assert.ErrorIs(t, f.svc.ValidateUser(context.Background(), "admin-1", "u1", ""), ErrAlreadyProcessed)
	assert.ErrorIs(t, f.svc.ValidateUser(context.Background(), "admin-1", "ghost", ""), ErrNotFound)
}

func TestRejectUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RejectUser(ctx, "admin-1", "u1", " "), ErrInvalidReason)
	assert.Zero(t, f.users.calls)
	assert.True(t, f.users.byID["u1"].PendingValidation)

	require.NoError(t, f.svc.RejectUser(ctx, "admin-1", "u1", "Datos incompletos"))
	u := f.users.byID["u1"]
	assert.False(t, u.Active)
	assert.False(t, u.PendingValidation)
	assert.Equal(t, "Datos incompletos", u.RejectionReason)
	assert.Equal(t, []string{"ana@example.org:Datos incompletos"}, f.mailer.rejected)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationAccountRejected, f.notifier.sent[0].kind)
}

func TestPendingPagination(t *testing.T) {
	f := newFixture()
	page, err := f.svc.PendingUsers(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, int64(1), page.Total)

	reports, err := f.svc.PendingReports(context.Background(), 3, 500)
	require.NoError(t, err)
	assert.Equal(t, 3, reports.Page)
	assert.Equal(t, 100, reports.PageSize)
}

func TestConcurrentValidationOnlyOneWins(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.ValidateReport(context.Background(), "mod", "r1", "")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, f.reports.snapshot("r1").Version)
}
