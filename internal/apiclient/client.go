// Package apiclient is the single egress point to the travel API. It attaches
// bearer tokens, normalizes failures into *APIError and publishes an event for
// every 401 so the session layer can react. It never retries.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodySize    = 10 << 20
	maxErrorBody   = 64 << 10
)

type Client struct {
	baseURL string
	http    *http.Client
	events  *Notifier
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport client; its Timeout is kept unless
// WithTimeout is applied afterwards.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		events:  NewNotifier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events exposes the unauthorized event channel.
func (c *Client) Events() *Notifier {
	return c.events
}

type tokenKey struct{}

// WithToken returns a context whose calls carry the bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, "")
}

func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	return c.sendJSON(ctx, http.MethodPost, path, payload)
}

func (c *Client) PutJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	return c.sendJSON(ctx, http.MethodPut, path, payload)
}

// PostForm sends form as multipart/form-data.
func (c *Client) PostForm(ctx context.Context, path string, form *Form) ([]byte, error) {
	body, contentType, err := form.encode()
	if err != nil {
		return nil, newTransportError(ErrNetwork, fmt.Sprintf("Failed to encode form: %v", err))
	}
	return c.Do(ctx, http.MethodPost, path, body, contentType)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, newTransportError(ErrNetwork, fmt.Sprintf("Failed to encode request: %v", err))
		}
		body = bytes.NewReader(encoded)
	}
	return c.Do(ctx, method, path, body, "application/json")
}

// Do performs one request and returns the raw response body on 2xx.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, newTransportError(ErrNetwork, fmt.Sprintf("Failed to create request: %v", err))
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	token := TokenFrom(ctx)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newHTTPError(resp.StatusCode, errBody)
		if resp.StatusCode == http.StatusUnauthorized {
			c.events.publish(UnauthorizedEvent{Token: token, Method: method, Path: path})
		}
		return nil, apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return data, nil
}

func classifyTransportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newTransportError(ErrTimeout, "The server took too long to respond. Please try again.")
	}
	if errors.Is(err, context.Canceled) {
		return newTransportError(context.Canceled, "Request was cancelled")
	}
	return newTransportError(ErrNetwork, "Network error: unable to reach the server")
}

// Decode unmarshals body into v, unwrapping an optional {"data": ...} envelope.
func Decode(body []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			if data, ok := envelope["data"]; ok {
				trimmed = data
			}
		}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Form is a multipart/form-data body with ordered fields and at most one file.
type Form struct {
	fields [][2]string
	file   *filePart
}

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func NewForm() *Form {
	return &Form{}
}

func (f *Form) Set(key, value string) *Form {
	f.fields = append(f.fields, [2]string{key, value})
	return f
}

func (f *Form) File(field, filename, contentType string, data []byte) *Form {
	f.file = &filePart{field: field, filename: filename, contentType: contentType, data: data}
	return f
}

func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, kv := range f.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}

	if f.file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.file.field), escapeQuotes(f.file.filename)))
		contentType := f.file.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.file.data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
