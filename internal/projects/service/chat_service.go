package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// MessageStore is the persistence the chat service needs.
type MessageStore interface {
	Append(ctx context.Context, m *domain.Message) error
}

// ChatService handles chat-related business logic
type ChatService struct {
	repo MessageStore
}

// NewChatService creates a new chat service
func NewChatService(repo MessageStore) *ChatService {
	return &ChatService{
		repo: repo,
	}
}

// PostMessageRequest contains the request data for posting a message
type PostMessageRequest struct {
	Text           string
	AttachmentURL  string
	AttachmentType string
}

// PostMessage appends a message to the project's chat. The sender is taken
// from the caller's role, never from the request.
func (s *ChatService) PostMessage(ctx context.Context, who domain.Principal, projectID string, req PostMessageRequest) (*domain.Message, error) {
	if !who.CanRead(projectID) {
		return nil, domain.ErrForbidden
	}

	text := strings.TrimSpace(req.Text)
	url := strings.TrimSpace(req.AttachmentURL)
	if text == "" && url == "" {
		return nil, domain.Invalid("text", "message is empty")
	}

	m := &domain.Message{
		ProjectID: projectID,
		Sender:    who.Role,
		Text:      text,
	}
	if url != "" {
		typ := strings.TrimSpace(req.AttachmentType)
		if typ == "" {
			typ = "application/octet-stream"
		}
		m.Attachment = &domain.Attachment{URL: url, Type: typ}
	}

	if err := s.repo.Append(ctx, m); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}
