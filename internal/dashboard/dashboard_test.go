package dashboard_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/bootstrap/apitest"
	"github.com/pmsystem/pmdash/internal/dashboard"
	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/dashboard/scheduler"
	"github.com/pmsystem/pmdash/internal/dashboard/session"
	"github.com/pmsystem/pmdash/internal/payments"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const poll = 20 * time.Millisecond

func newApp(t *testing.T, srv *apitest.Server) *dashboard.App {
	t.Helper()
	cfg := &config.Config{
		Client: config.ClientConfig{
			APIBaseURL:   srv.URL,
			PollInterval: poll,
			Timeout:      2 * time.Second,
		},
		App: config.AppConfig{Environment: "test"},
	}
	app := dashboard.New(cfg, nil)
	t.Cleanup(app.CloseProject)
	return app
}

func loginAdmin(t *testing.T, app *dashboard.App) {
	t.Helper()
	_, err := app.Login(context.Background(), domain.RoleAdmin, session.Credentials{ID: apitest.AdminUser, Password: apitest.AdminPassword})
	require.NoError(t, err)
}

func TestScenarioAdminCreatesProject(t *testing.T) {
	srv := apitest.New(t)
	app := newApp(t, srv)
	ctx := context.Background()
	loginAdmin(t, app)

	creds, err := app.Mutations.CreateProject(ctx, domain.NewProject{
		Name:  "Site Redesign",
		Price: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, creds.ID)
	assert.NotEmpty(t, creds.Password)

	items, loaded := app.Catalog.Items()
	require.True(t, loaded)
	require.Len(t, items, 1)

	agg, err := app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, agg.Details.Status)
	assert.Empty(t, agg.Stages)
	assert.Empty(t, agg.Messages)

	// the one-time password works for the client
	client := newApp(t, srv)
	_, err = client.Login(ctx, domain.RoleClient, session.Credentials{ID: creds.ID, Password: creds.Password})
	assert.NoError(t, err)
}

func TestScenarioPaymentHidesPayAction(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 1000)
	app := newApp(t, srv)
	ctx := context.Background()

	_, err := app.Login(ctx, domain.RoleClient, session.Credentials{ID: creds.ID, Password: creds.Password})
	require.NoError(t, err)
	_, err = app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)

	vm, ok := app.View()
	require.True(t, ok)
	assert.True(t, vm.CanPay)

	body := []byte(fmt.Sprintf(`{"event_id":"ev-1","project_id":%q,"amount":"1000"}`, creds.ID))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/payments/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(payments.SignatureHeader, payments.Sign([]byte(apitest.WebhookSecret), body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Store.Refresh(ctx))
	vm, _ = app.View()
	assert.False(t, vm.CanPay)
	assert.True(t, vm.Paid.Value.Equal(decimal.NewFromInt(1000)))
}

func TestScenarioToggleStageProgress(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 100, "Brief", "Design", "Build", "QA", "Launch")
	app := newApp(t, srv)
	ctx := context.Background()
	loginAdmin(t, app)

	_, err := app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	_, err = app.Mutations.SetStage(ctx, 0, true)
	require.NoError(t, err)
	_, err = app.Mutations.SetStage(ctx, 1, true)
	require.NoError(t, err)

	vm, _ := app.View()
	assert.Equal(t, 40, vm.Progress)

	_, err = app.Mutations.ToggleStage(ctx, 2)
	require.NoError(t, err)

	// the write refreshed the store without waiting for a poll
	vm, _ = app.View()
	assert.Equal(t, 60, vm.Progress)
	assert.True(t, vm.Stages[2].Done)
}

func TestScenarioClientMessageReachesAdminPoll(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 100)
	ctx := context.Background()

	admin := newApp(t, srv)
	loginAdmin(t, admin)
	_, err := admin.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Polling, admin.Scheduler.State())

	client := newApp(t, srv)
	_, err = client.Login(ctx, domain.RoleClient, session.Credentials{ID: creds.ID, Password: creds.Password})
	require.NoError(t, err)
	_, err = client.OpenProject(ctx, creds.ID)
	require.NoError(t, err)

	msg, err := client.Mutations.SendMessage(ctx, "Когда будет готово?")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleClient, msg.Sender)
	assert.Nil(t, msg.Attachment)

	vm, _ := client.View()
	require.Len(t, vm.Messages, 1)
	assert.True(t, vm.Messages[0].Own)

	assert.Eventually(t, func() bool {
		vm, ok := admin.View()
		return ok && len(vm.Messages) == 1
	}, scheduler.DefaultInterval, poll)

	vm, _ = admin.View()
	assert.Equal(t, "Когда будет готово?", vm.Messages[0].Text)
	assert.False(t, vm.Messages[0].Own)
}

func TestScenarioConcurrentStageToggles(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 100, "Design", "Build", "QA")
	ctx := context.Background()

	a := newApp(t, srv)
	loginAdmin(t, a)
	b := newApp(t, srv)
	loginAdmin(t, b)

	_, err := a.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	staleB, err := b.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	b.Scheduler.Close()

	_, err = a.Mutations.ToggleStage(ctx, 0)
	require.NoError(t, err)

	// b still holds the pre-A snapshot and toggles stage 1
	_, err = b.Mutations.ToggleStage(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, a.Store.Refresh(ctx))
	snap, _ := a.Store.Snapshot()
	assert.True(t, snap.Stages[0].Done)
	assert.True(t, snap.Stages[1].Done)
	assert.False(t, snap.Stages[2].Done)

	// replacing the whole list from the stale snapshot is refused
	stages := append([]domain.Stage{}, staleB.Stages...)
	stages[2].Done = true
	version := staleB.Details.Version
	_, err = b.Mutations.UpdateProject(ctx, domain.ProjectUpdate{Stages: stages, ExpectedVersion: &version})
	assert.ErrorIs(t, err, api.ErrConflict)

	require.NoError(t, a.Store.Refresh(ctx))
	snap, _ = a.Store.Snapshot()
	assert.True(t, snap.Stages[0].Done)
	assert.True(t, snap.Stages[1].Done)
}

func TestUnauthorizedTearsDownEverything(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 100)
	app := newApp(t, srv)
	ctx := context.Background()

	_, err := app.Login(ctx, domain.RoleClient, session.Credentials{ID: creds.ID, Password: creds.Password})
	require.NoError(t, err)
	_, err = app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	_, err = app.Mutations.SendMessage(ctx, "hi")
	require.NoError(t, err)

	// revoke the token behind the manager's back
	cur, _ := app.Session.Current()
	require.NoError(t, api.NewClient(srv.URL, time.Second).Logout(ctx, cur.Token))

	// either this refresh or the next poll sees the 401
	_ = app.Store.Refresh(ctx)
	assert.Eventually(t, func() bool {
		_, ok := app.Session.Current()
		return !ok
	}, time.Second, poll)

	_, ok := app.Store.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, scheduler.Idle, app.Scheduler.State())
	var n int
	for range app.Chat.ListOrdered(creds.ID) {
		n++
	}
	assert.Zero(t, n)
	_, ok = app.View()
	assert.False(t, ok)
}

func TestCloseProjectDiscardsPolling(t *testing.T) {
	srv := apitest.New(t)
	first := srv.SeedProject(t, "One", 100)
	second := srv.SeedProject(t, "Two", 100)
	app := newApp(t, srv)
	ctx := context.Background()
	loginAdmin(t, app)

	_, err := app.OpenProject(ctx, first.ID)
	require.NoError(t, err)
	_, err = app.OpenProject(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, app.Scheduler.ProjectID())

	time.Sleep(3 * poll)
	snap, _ := app.Store.Snapshot()
	assert.Equal(t, second.ID, snap.Details.ID)

	app.CloseProject()
	time.Sleep(3 * poll)
	_, ok := app.Store.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, scheduler.Idle, app.Scheduler.State())
}

func TestLogout(t *testing.T) {
	srv := apitest.New(t)
	creds := srv.SeedProject(t, "Shop", 100)
	app := newApp(t, srv)
	ctx := context.Background()
	loginAdmin(t, app)
	_, err := app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)
	_, err = app.Mutations.AddTodo(ctx, "invoice")
	require.NoError(t, err)

	require.NoError(t, app.Logout(ctx))
	require.NoError(t, app.Logout(ctx))

	_, ok := app.Session.Current()
	assert.False(t, ok)
	assert.Empty(t, app.Mutations.Todos())
	_, loaded := app.Catalog.Items()
	assert.False(t, loaded)
	assert.Equal(t, scheduler.Idle, app.Scheduler.State())

	_, err = app.OpenProject(ctx, creds.ID)
	assert.ErrorIs(t, err, api.ErrNoSession)
}

func TestReloginDropsAdminCaches(t *testing.T) {
	srv := apitest.New(t)
	app := newApp(t, srv)
	ctx := context.Background()
	loginAdmin(t, app)

	creds, err := app.Mutations.CreateProject(ctx, domain.NewProject{Name: "Shop", Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = app.Mutations.AddTodo(ctx, "invoice")
	require.NoError(t, err)
	_, err = app.OpenProject(ctx, creds.ID)
	require.NoError(t, err)

	_, err = app.Login(ctx, domain.RoleClient, session.Credentials{ID: creds.ID, Password: creds.Password})
	require.NoError(t, err)

	cur, ok := app.Session.Current()
	require.True(t, ok)
	assert.Equal(t, domain.RoleClient, cur.Role)
	_, loaded := app.Catalog.Items()
	assert.False(t, loaded)
	assert.Empty(t, app.Mutations.Todos())
	assert.Equal(t, scheduler.Idle, app.Scheduler.State())
	assert.Empty(t, app.Store.ProjectID())
}
