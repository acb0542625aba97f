// Package chatlog reads and appends the message log of a project.
package chatlog

import (
	"context"
	"io"
	"iter"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type Backend interface {
	PostMessage(ctx context.Context, token, projectID, text string, att *domain.Attachment) (*domain.Message, error)
	Upload(ctx context.Context, token, filename, contentType string, r io.Reader) (*domain.Upload, error)
}

type Caller interface {
	Call(ctx context.Context, fn func(ctx context.Context, token string) error) error
}

// Source supplies the committed aggregate the log reads from.
type Source interface {
	Snapshot() (*domain.Aggregate, bool)
}

// Upload is a file to attach to a new message.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type Log struct {
	backend Backend
	calls   Caller
	source  Source
}

func New(backend Backend, calls Caller, source Source) *Log {
	return &Log{backend: backend, calls: calls, source: source}
}

// Append posts a message. The server decides the sender from the token.
func (l *Log) Append(ctx context.Context, projectID, text string, att *domain.Attachment) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && att == nil {
		return domain.Message{}, &api.ValidationError{Field: "text", Message: "message is empty"}
	}
	if strings.TrimSpace(projectID) == "" {
		return domain.Message{}, api.ErrNoProject
	}

	var msg *domain.Message
	err := l.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		msg, err = l.backend.PostMessage(ctx, token, projectID, text, att)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return *msg, nil
}

// AppendWithUpload stores the file, then posts the message pointing at it.
// When only the second step fails the error is an *api.OrphanedUploadError
// that carries the attachment for a retry.
func (l *Log) AppendWithUpload(ctx context.Context, projectID, text string, up Upload) (domain.Message, error) {
	if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
		return domain.Message{}, &api.ValidationError{Field: "file", Message: "file is required"}
	}
	if strings.TrimSpace(projectID) == "" {
		return domain.Message{}, api.ErrNoProject
	}

	var stored *domain.Upload
	err := l.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		stored, err = l.backend.Upload(ctx, token, up.Filename, up.ContentType, up.Body)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}

	att := domain.Attachment{URL: stored.URL, Type: stored.Type}
	msg, err := l.Append(ctx, projectID, text, &att)
	if err != nil {
		logger.Zlog.Warn("uploaded file has no message",
			zap.String("project_id", projectID),
			zap.String("url", att.URL),
			zap.Error(err),
		)
		return domain.Message{}, &api.OrphanedUploadError{Attachment: att, Err: err}
	}
	return msg, nil
}

// ListOrdered yields the messages of projectID from the committed snapshot,
// oldest first. Equal timestamps fall back to the server sequence and then
// to log position. Each range takes a fresh snapshot.
func (l *Log) ListOrdered(projectID string) iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		agg, ok := l.source.Snapshot()
		if !ok || agg.Details.ID != projectID {
			return
		}
		for _, m := range Ordered(projectID, agg.Messages) {
			if !yield(m) {
				return
			}
		}
	}
}

// Ordered filters msgs to projectID and sorts them.
func Ordered(projectID string, msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// IsOwn reports whether msg was sent by the given side. Sides are roles,
// not accounts.
func IsOwn(msg domain.Message, role domain.Role) bool {
	return msg.Sender == role
}
