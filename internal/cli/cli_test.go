package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/bootstrap/apitest"
	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type harness struct {
	srv         *apitest.Server
	sessionFile string
}

func newHarness(t *testing.T) *harness {
	return &harness{
		srv:         apitest.New(t),
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

// run executes one pmctl invocation; the session survives between runs
// through the session file, like separate processes would.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfg := &config.Config{
		Client: config.ClientConfig{
			APIBaseURL:   h.srv.URL,
			PollInterval: 20 * time.Millisecond,
			SessionFile:  h.sessionFile,
			Timeout:      2 * time.Second,
		},
		App: config.AppConfig{Environment: "test"},
	}
	root := NewRootCommand(Options{Config: cfg, Version: "test"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAdminFlow(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, apitest.AdminPassword+"\n", "login", "admin", apitest.AdminUser)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin admin")

	out, err = h.run(t, "", "create", "--name", "Site Redesign", "--price", "50000", "--stage", "Design", "--stage", "Build")
	require.NoError(t, err)
	assert.Contains(t, out, "Client password:")
	id := strings.TrimSpace(strings.TrimPrefix(strings.Split(out, "\n")[0], "Project created:"))
	require.NotEmpty(t, id)

	out, err = h.run(t, "", "projects")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Site Redesign")

	out, err = h.run(t, "", "stage", "0", "done", "-p", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Progress: 50%")

	out, err = h.run(t, "", "set", id, "--status", "InProgress", "--deadline", "2026-12-24")
	require.NoError(t, err)
	assert.Contains(t, out, "InProgress")
	assert.Contains(t, out, "2026-12-24")
	assert.Contains(t, out, "Editable: status, price, deadline")

	_, err = h.run(t, "", "set", id, "--status", "Archived")
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)

	out, err = h.run(t, "", "todos", "add", "send", "invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "Added")
	out, err = h.run(t, "", "todos")
	require.NoError(t, err)
	assert.Contains(t, out, "send invoice")

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run(t, "", "projects")
	assert.ErrorIs(t, err, api.ErrNoSession)
}

func TestClientFlow(t *testing.T) {
	h := newHarness(t)
	creds := h.srv.SeedProject(t, "Shop", 1000, "Design")

	_, err := h.run(t, "", "login", "client", creds.ID, "--password", "wrong")
	assert.ErrorIs(t, err, api.ErrAuth)
	assert.Equal(t, "wrong id or password", Describe(err))

	_, err = h.run(t, "", "login", "client", creds.ID, "--password", creds.Password)
	require.NoError(t, err)

	out, err := h.run(t, "", "send", "Когда", "будет", "готово?")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent at")

	file := filepath.Join(t.TempDir(), "brief.txt")
	require.NoError(t, os.WriteFile(file, []byte("requirements"), 0o600))
	out, err = h.run(t, "", "attach", file, "--text", "brief")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded /files/")

	out, err = h.run(t, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Shop")
	assert.Contains(t, out, "Payment due: 1000.00")
	assert.Contains(t, out, "you: Когда будет готово?")
	assert.Contains(t, out, "text/plain")
	assert.NotContains(t, out, "Editable:")

	_, err = h.run(t, "", "projects")
	assert.ErrorIs(t, err, api.ErrForbidden)
	_, err = h.run(t, "", "stage", "0", "done")
	assert.ErrorIs(t, err, api.ErrForbidden)
	_, err = h.run(t, "", "todos")
	assert.ErrorIs(t, err, api.ErrForbidden)

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "client "+creds.ID)
}

func TestWatchPrintsHistory(t *testing.T) {
	h := newHarness(t)
	creds := h.srv.SeedProject(t, "Shop", 1000)

	_, err := h.run(t, "", "login", "client", creds.ID, "--password", creds.Password)
	require.NoError(t, err)
	_, err = h.run(t, "", "send", "hello")
	require.NoError(t, err)

	out, err := h.run(t, "", "watch", "--for", "100ms")
	require.NoError(t, err)
	assert.Contains(t, out, "you: hello")
}

func TestRevokedSessionExpires(t *testing.T) {
	h := newHarness(t)
	creds := h.srv.SeedProject(t, "Shop", 1000)

	_, err := h.run(t, "", "login", "client", creds.ID, "--password", creds.Password)
	require.NoError(t, err)

	data, err := os.ReadFile(h.sessionFile)
	require.NoError(t, err)
	token := strings.Split(strings.Split(string(data), `"token":"`)[1], `"`)[0]
	require.NoError(t, api.NewClient(h.srv.URL, time.Second).Logout(context.Background(), token))

	_, err = h.run(t, "", "show")
	assert.ErrorIs(t, err, api.ErrSessionExpired)
	assert.Contains(t, Describe(err), "session has expired")

	_, err = os.Stat(h.sessionFile)
	assert.True(t, os.IsNotExist(err))
}

func TestProjectIDRequiredForAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "login", "admin", apitest.AdminUser, "--password", apitest.AdminPassword)
	require.NoError(t, err)

	_, err = h.run(t, "", "show")
	assert.ErrorContains(t, err, "project id is required")
}

func TestDescribeOrphanedUpload(t *testing.T) {
	att := domain.Attachment{URL: "/files/ab12.pdf", Type: "application/pdf"}

	tests := []struct {
		name  string
		cause error
		want  string
	}{
		{"expired session", api.ErrSessionExpired, "session has expired"},
		{"forbidden", api.ErrForbidden, "not available for your role"},
		{"not found", api.ErrNotFound, "project not found"},
		{"conflict", api.ErrConflict, api.ErrConflict.Error()},
		{"network", &api.NetworkError{Op: "post message", Err: context.DeadlineExceeded}, "server unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Describe(&api.OrphanedUploadError{Attachment: att, Err: tt.cause})
			assert.Contains(t, msg, "pmctl send --attachment /files/ab12.pdf")
			assert.Contains(t, msg, tt.want)
		})
	}
}
