// Package rest implements the service.Service interface over the todo REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"todo/internal/service"
)

const (
	// RequestIDHeader carries a per-request id for log correlation.
	RequestIDHeader = "X-Request-ID"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client implements service.Service against the REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout caps each HTTP call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for baseURL. tokens supplies the bearer credential
// for each request; it may be nil, and it may yield an empty token, in which
// case requests go out unauthenticated.
func New(baseURL string, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &bearerTransport{source: tokens, base: http.DefaultTransport},
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// bearerTransport attaches the current token, if any, to each request.
type bearerTransport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.source == nil {
		return t.base.RoundTrip(req)
	}
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("token source: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	r2 := req.Clone(req.Context())
	tok.SetAuthHeader(r2)
	return t.base.RoundTrip(r2)
}

// envelope is the {data: ...} wrapper used by the backend.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authData struct {
	Token string `json:"token"`
	User  struct {
		Email string `json:"email"`
	} `json:"user"`
}

type createBody struct {
	Title    string            `json:"title"`
	Location *service.Location `json:"location,omitempty"`
	PhotoURI string            `json:"photoUri,omitempty"`
}

// Login implements service.Authenticator.
func (c *Client) Login(ctx context.Context, identity, secret string) (service.AuthResult, error) {
	return c.authenticate(ctx, "login", "/auth/login", identity, secret, "authentication failed")
}

// Register implements service.Authenticator.
func (c *Client) Register(ctx context.Context, identity, secret string) (service.AuthResult, error) {
	return c.authenticate(ctx, "register", "/auth/register", identity, secret, "registration failed")
}

func (c *Client) authenticate(ctx context.Context, op, path, identity, secret, defaultMsg string) (service.AuthResult, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, path, credentials{Email: identity, Password: secret})
	if err != nil {
		return service.AuthResult{}, networkError(op, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return service.AuthResult{}, &service.Error{
			Kind:    service.ErrAuth,
			Op:      op,
			Status:  resp.StatusCode,
			Message: serverMessage(resp, defaultMsg),
		}
	}

	var data authData
	if err := decodeData(resp.Body, &data); err != nil {
		return service.AuthResult{}, networkError(op, err)
	}
	if data.Token == "" {
		return service.AuthResult{}, service.NewError(service.ErrAuth, op, "server returned no token", nil)
	}

	result := service.AuthResult{Token: data.Token, Identity: data.User.Email}
	if result.Identity == "" {
		result.Identity = identity
	}
	return result, nil
}

// ListTasks implements service.TaskService.
func (c *Client) ListTasks(ctx context.Context) ([]service.RemoteTask, error) {
	const op = "list tasks"

	resp, err := c.do(ctx, http.MethodGet, "/todos", nil, "")
	if err != nil {
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError(op, resp, "failed to fetch tasks")
	}

	var tasks []service.RemoteTask
	if err := decodeData(resp.Body, &tasks); err != nil {
		return nil, networkError(op, err)
	}
	return tasks, nil
}

// CreateTask implements service.TaskService.
// A local image is uploaded before the task is created; if the upload fails
// no task is created.
func (c *Client) CreateTask(ctx context.Context, task service.NewTask) (service.RemoteTask, error) {
	const op = "create task"

	photoURI := ""
	if task.ImageRef != "" {
		if isRemoteRef(task.ImageRef) {
			photoURI = task.ImageRef
		} else {
			uploaded, err := c.UploadImage(ctx, task.ImageRef)
			if err != nil {
				return service.RemoteTask{}, err
			}
			photoURI = uploaded
		}
	}

	body := createBody{Title: task.Title, Location: task.Location, PhotoURI: photoURI}
	resp, err := c.doJSON(ctx, http.MethodPost, "/todos", body)
	if err != nil {
		return service.RemoteTask{}, networkError(op, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return service.RemoteTask{}, statusError(op, resp, "failed to create task")
	}

	var created service.RemoteTask
	if err := decodeRecord(resp.Body, &created); err != nil {
		return service.RemoteTask{}, networkError(op, err)
	}
	return created, nil
}

// UpdateTask implements service.TaskService.
func (c *Client) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (service.RemoteTask, error) {
	const op = "update task"

	resp, err := c.doJSON(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), patch)
	if err != nil {
		return service.RemoteTask{}, networkError(op, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return service.RemoteTask{}, statusError(op, resp, "failed to update task")
	}

	var updated service.RemoteTask
	if err := decodeRecord(resp.Body, &updated); err != nil {
		return service.RemoteTask{}, networkError(op, err)
	}
	return updated, nil
}

// DeleteTask implements service.TaskService.
// A 404 is success: the task is gone either way.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	const op = "delete task"

	resp, err := c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, "")
	if err != nil {
		return networkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if !isSuccess(resp.StatusCode) {
		return statusError(op, resp, "failed to delete task")
	}
	return nil
}

// UploadImage uploads a local image file and returns its durable URL.
func (c *Client) UploadImage(ctx context.Context, ref string) (string, error) {
	const op = "upload image"

	path := localPath(ref)
	f, err := os.Open(path)
	if err != nil {
		return "", service.NewError(service.ErrValidation, op, "cannot read image", err)
	}
	defer f.Close()

	filename := filepath.Base(path)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", imageContentType(filename))
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", networkError(op, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", service.NewError(service.ErrValidation, op, "cannot read image", err)
	}
	if err := mw.Close(); err != nil {
		return "", networkError(op, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/images", &buf, mw.FormDataContentType())
	if err != nil {
		return "", networkError(op, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", statusError(op, resp, "failed to upload image")
	}

	var data struct {
		URL string `json:"url"`
	}
	if err := decodeData(resp.Body, &data); err != nil {
		return "", networkError(op, err)
	}
	if data.URL == "" {
		return "", service.NewError(service.ErrNetwork, op, "server returned no url", nil)
	}
	return data.URL, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "id", reqID, "method", method, "path", path, "err", err)
		return nil, err
	}
	c.logger.Debug("request", "id", reqID, "method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// statusError classifies a non-success response.
func statusError(op string, resp *http.Response, defaultMsg string) error {
	kind := service.ErrNetwork
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = service.ErrAuth
	case http.StatusNotFound:
		kind = service.ErrNotFound
	}
	return &service.Error{
		Kind:    kind,
		Op:      op,
		Status:  resp.StatusCode,
		Message: serverMessage(resp, defaultMsg),
	}
}

func networkError(op string, err error) error {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return err
	}
	return service.NewError(service.ErrNetwork, op, "", err)
}

// serverMessage extracts {message} from a JSON error body, or falls back to def.
func serverMessage(resp *http.Response, def string) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return def
	}
	// Non-JSON bodies (proxy error pages) are not shown to the user
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Message == "" {
		return def
	}
	return env.Message
}

// decodeData decodes the payload of a {data: ...} envelope into v.
func decodeData(r io.Reader, v any) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("invalid response data: %w", err)
	}
	return nil
}

// decodeRecord decodes a record that may or may not be wrapped in {data: ...}.
func decodeRecord(r io.Reader, v any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid response data: %w", err)
	}
	return nil
}

func isRemoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// localPath turns a file:// URI into a filesystem path.
func localPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return ref
}

// imageContentType derives image/<ext> from the filename, defaulting to JPEG.
func imageContentType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "":
		return "image/jpeg"
	case "jpg":
		return "image/jpeg"
	default:
		return "image/" + ext
	}
}
