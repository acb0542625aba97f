package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// Client talks to the dashboard backend. Every authenticated method takes
// the bearer token explicitly; the client holds no session state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	Role      domain.Role `json:"role"`
	Subject   string      `json:"subject"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (c *Client) LoginAdmin(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.login(ctx, "/auth/admin", map[string]string{"username": username, "password": password}, &out)
	return &out, err
}

func (c *Client) LoginClient(ctx context.Context, projectID, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.login(ctx, "/auth/client", map[string]string{"project_id": projectID, "password": password}, &out)
	return &out, err
}

func (c *Client) login(ctx context.Context, path string, body any, out *LoginResult) error {
	err := c.do(ctx, http.MethodPost, path, "", body, nil, out)
	if errors.Is(err, ErrUnauthorized) {
		return ErrAuth
	}
	return err
}

// Logout asks the backend to revoke the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil, nil)
}

// GetProject fetches the whole aggregate in one request.
func (c *Client) GetProject(ctx context.Context, token, id string) (*domain.Aggregate, error) {
	var out domain.Aggregate
	if err := c.do(ctx, http.MethodGet, "/project/"+url.PathEscape(id), token, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Stages == nil {
		out.Stages = []domain.Stage{}
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return &out, nil
}

func (c *Client) ListProjects(ctx context.Context, token string) ([]domain.ProjectSummary, error) {
	var out struct {
		Projects []domain.ProjectSummary `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) CreateProject(ctx context.Context, token string, in domain.NewProject) (*domain.ProjectCredentials, error) {
	var out domain.ProjectCredentials
	if err := c.do(ctx, http.MethodPost, "/projects", token, in, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type versionResp struct {
	Version int64 `json:"version"`
}

// UpdateProject sends a partial update. A stage list replacement carries
// the expected version as If-Match.
func (c *Client) UpdateProject(ctx context.Context, token, id string, upd domain.ProjectUpdate) (int64, error) {
	var headers http.Header
	if upd.ExpectedVersion != nil {
		headers = http.Header{}
		headers.Set("If-Match", strconv.Quote(strconv.FormatInt(*upd.ExpectedVersion, 10)))
	}
	var out versionResp
	if err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(id), token, upd, headers, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (c *Client) SetStage(ctx context.Context, token, id string, index int, done bool) (int64, error) {
	path := fmt.Sprintf("/projects/%s/stages/%d", url.PathEscape(id), index)
	var out versionResp
	if err := c.do(ctx, http.MethodPut, path, token, map[string]bool{"done": done}, nil, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (c *Client) PostMessage(ctx context.Context, token, projectID, text string, att *domain.Attachment) (*domain.Message, error) {
	body := map[string]string{"text": text}
	if att != nil {
		body["attachment_url"] = att.URL
		body["attachment_type"] = att.Type
	}
	var out struct {
		Message domain.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/"+url.PathEscape(projectID), token, body, nil, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// Upload sends a file as multipart form data.
func (c *Client) Upload(ctx context.Context, token, filename, contentType string, r io.Reader) (*domain.Upload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", w.FormDataContentType())
	var out domain.Upload
	if err := c.do(ctx, http.MethodPost, "/upload", token, rawBody(buf.Bytes()), headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTodos(ctx context.Context, token string) ([]domain.Todo, error) {
	var out struct {
		Todos []domain.Todo `json:"todos"`
	}
	if err := c.do(ctx, http.MethodGet, "/todos", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Todos, nil
}

func (c *Client) AddTodo(ctx context.Context, token, text string) (*domain.Todo, error) {
	var out struct {
		Todo domain.Todo `json:"todo"`
	}
	if err := c.do(ctx, http.MethodPost, "/todos", token, map[string]string{"text": text}, nil, &out); err != nil {
		return nil, err
	}
	return &out.Todo, nil
}

func (c *Client) DeleteTodo(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), token, nil, nil, nil)
}

// rawBody is sent as is instead of being JSON encoded.
type rawBody []byte

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body any, headers http.Header, out any) error {
	op := method + " " + path

	var rdr io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case rawBody:
		rdr = bytes.NewReader(b)
	default:
		jsonData, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func statusError(op string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &ValidationError{Field: eb.Field, Message: msg}
	default:
		return &NetworkError{Op: op, Status: status, Err: errors.New(eb.Error)}
	}
}
