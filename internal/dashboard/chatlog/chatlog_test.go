package chatlog

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type passthrough struct{}

func (passthrough) Call(ctx context.Context, fn func(context.Context, string) error) error {
	return fn(ctx, "tok")
}

type fixedSource struct{ agg *domain.Aggregate }

func (f fixedSource) Snapshot() (*domain.Aggregate, bool) {
	if f.agg == nil {
		return nil, false
	}
	return f.agg.Clone(), true
}

type fakeBackend struct {
	posted    []string
	postErr   error
	uploadErr error
}

func (f *fakeBackend) PostMessage(_ context.Context, _, projectID, text string, att *domain.Attachment) (*domain.Message, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, text)
	return &domain.Message{ProjectID: projectID, Sender: domain.RoleAdmin, Text: text, Attachment: att}, nil
}

func (f *fakeBackend) Upload(_ context.Context, _, filename, contentType string, r io.Reader) (*domain.Upload, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	_, _ = io.ReadAll(r)
	return &domain.Upload{Filename: filename, URL: "/files/2026/03/x.pdf", Type: contentType}, nil
}

func TestAppendRejectsEmpty(t *testing.T) {
	backend := &fakeBackend{}
	l := New(backend, passthrough{}, fixedSource{})

	_, err := l.Append(context.Background(), "PRJ-1", "   ", nil)
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, backend.posted)

	msg, err := l.Append(context.Background(), "PRJ-1", "", &domain.Attachment{URL: "/files/a"})
	require.NoError(t, err)
	assert.NotNil(t, msg.Attachment)
}

func TestListOrderedInterleavedProjects(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	agg := &domain.Aggregate{
		Details: domain.Project{ID: "PRJ-A"},
		Messages: []domain.Message{
			{ID: "3", ProjectID: "PRJ-A", Timestamp: t0.Add(2 * time.Minute), Seq: 5},
			{ID: "x", ProjectID: "PRJ-B", Timestamp: t0},
			{ID: "2b", ProjectID: "PRJ-A", Timestamp: t0.Add(time.Minute), Seq: 4},
			{ID: "1", ProjectID: "PRJ-A", Timestamp: t0, Seq: 1},
			{ID: "2a", ProjectID: "PRJ-A", Timestamp: t0.Add(time.Minute), Seq: 3},
			{ID: "y", ProjectID: "PRJ-B", Timestamp: t0.Add(time.Hour)},
		},
	}
	l := New(&fakeBackend{}, passthrough{}, fixedSource{agg: agg})

	var ids []string
	for m := range l.ListOrdered("PRJ-A") {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"1", "2a", "2b", "3"}, ids)

	// restartable and stoppable
	var again []string
	for m := range l.ListOrdered("PRJ-A") {
		again = append(again, m.ID)
		if len(again) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2a"}, again)

	var other int
	for range l.ListOrdered("PRJ-B") {
		other++
	}
	assert.Zero(t, other, "snapshot belongs to PRJ-A")
}

func TestOrderedKeepsLogPositionOnFullTie(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		{ID: "first", ProjectID: "P", Timestamp: t0},
		{ID: "second", ProjectID: "P", Timestamp: t0},
	}
	out := Ordered("P", msgs)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, "second", out[1].ID)
}

func TestIsOwn(t *testing.T) {
	msg := domain.Message{Sender: domain.RoleClient}
	assert.True(t, IsOwn(msg, domain.RoleClient))
	assert.False(t, IsOwn(msg, domain.RoleAdmin))
}

func TestAppendWithUploadOrphan(t *testing.T) {
	backend := &fakeBackend{postErr: &api.NetworkError{Op: "POST /chat", Err: errors.New("reset")}}
	l := New(backend, passthrough{}, fixedSource{})

	_, err := l.AppendWithUpload(context.Background(), "PRJ-1", "brief", Upload{
		Filename:    "brief.pdf",
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF"),
	})
	var orphan *api.OrphanedUploadError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "/files/2026/03/x.pdf", orphan.Attachment.URL)
	assert.True(t, api.IsTransient(err))

	// retrying the append with the carried attachment succeeds
	backend.postErr = nil
	msg, err := l.Append(context.Background(), "PRJ-1", "brief", &orphan.Attachment)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", msg.Attachment.Type)
}

func TestAppendWithUploadFailedUpload(t *testing.T) {
	backend := &fakeBackend{uploadErr: &api.ValidationError{Field: "file", Message: "file too large"}}
	l := New(backend, passthrough{}, fixedSource{})

	_, err := l.AppendWithUpload(context.Background(), "PRJ-1", "", Upload{Filename: "big.bin", Body: strings.NewReader("x")})
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	var orphan *api.OrphanedUploadError
	assert.False(t, errors.As(err, &orphan))
	assert.Empty(t, backend.posted)
}
