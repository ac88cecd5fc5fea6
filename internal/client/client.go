// Package client talks to the workflow definition service: revision
// lookup, paged listing and save.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultTimeout         = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:5001/api/v1.
	BaseURL         string
	Timeout         time.Duration
	MaxResponseBody int64
	HTTPClient      *http.Client
	Retry           RetryPolicy
	Logger          *slog.Logger
}

// Client is a workflow definition service client. It is safe for
// concurrent use.
type Client struct {
	base    string
	http    *http.Client
	maxBody int64
	retry   RetryPolicy
	logger  *slog.Logger
}

// New builds a Client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "client: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "client: invalid base URL %q", base).WithCause(err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBody
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Client{base: base, http: hc, maxBody: maxBody, retry: cfg.Retry, logger: logger}, nil
}

// FetchRevisions returns every revision of workflowType.
func (c *Client) FetchRevisions(ctx context.Context, workflowType string) ([]schema.WorkflowDefinition, error) {
	u := c.base + "/workflows/revisions/" + url.PathEscape(workflowType)
	status, body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, remoteError("failed to fetch revisions", status, body)
	}

	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "client: revisions response is not JSON").WithCause(err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, schema.NewErrorf(schema.ErrCodeRemote, "failed to fetch revisions: %s", msg).
			WithDetails(map[string]any{"status": status})
	}
	var defs []schema.WorkflowDefinition
	if err := json.Unmarshal(env.Data, &defs); err != nil || defs == nil {
		e := schema.NewError(schema.ErrCodeDecode, "client: revisions data is not an array")
		if err != nil {
			e = e.WithCause(err)
		}
		return nil, e
	}
	return defs, nil
}

// ListDefinitions returns one page of the definition listing. A length of
// zero or less asks for 10 rows.
func (c *Client) ListDefinitions(ctx context.Context, start, length int) (*schema.DefinitionPage, error) {
	if start < 0 {
		start = 0
	}
	if length <= 0 {
		length = 10
	}
	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("length", strconv.Itoa(length))
	status, body, err := c.get(ctx, c.base+"/workflows?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, remoteError("failed to fetch workflows", status, body)
	}
	var page schema.DefinitionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "client: listing response is not JSON").WithCause(err)
	}
	if page.Data == nil {
		page.Data = []schema.Summary{}
	}
	return &page, nil
}

// Save posts def and returns the persisted document. The service may answer
// with the bare document or wrap it in {success, data}.
func (c *Client) Save(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error) {
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "client: encode definition").WithCause(err)
	}
	ctx = logging.WithWorkflowType(ctx, def.WorkflowType)
	status, body, err := c.do(ctx, http.MethodPost, c.base+"/workflows", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, remoteError("failed to save workflow", status, body)
	}
	saved, err := decodeSaved(body)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(logging.WithDefinitionID(ctx, saved.ID), "workflow saved", "revision", saved.Revision)
	return saved, nil
}

func decodeSaved(body []byte) (*schema.WorkflowDefinition, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "client: save response is not a JSON object").WithCause(err)
	}
	raw := json.RawMessage(body)
	if _, wrapped := probe["success"]; wrapped {
		var env schema.Envelope[json.RawMessage]
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, schema.NewError(schema.ErrCodeDecode, "client: decode save envelope").WithCause(err)
		}
		if !env.Success {
			return nil, schema.NewErrorf(schema.ErrCodeRemote, "failed to save workflow: %s", env.Message)
		}
		raw = env.Data
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "client: decode saved definition").WithCause(err)
	}
	return &def, nil
}

// do performs one request and returns the status and the capped body.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, schema.NewErrorf(schema.ErrCodeNetwork, "client: build request %s %s", method, u).WithCause(err)
	}
	req.Header.Set("Accept", "*/*")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "request failed", "method", method, "url", u, "error", err)
		return 0, nil, schema.NewErrorf(schema.ErrCodeNetwork, "client: %s %s: %v", method, u, err).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return 0, nil, schema.NewError(schema.ErrCodeNetwork, "client: read response body").WithCause(err)
	}
	c.logger.DebugContext(ctx, "request done",
		"method", method, "url", u, "status", resp.StatusCode, "duration", time.Since(start))
	return resp.StatusCode, body, nil
}

// remoteError builds a REMOTE_ERROR carrying the body's message when it has
// one, else the status text.
func remoteError(prefix string, status int, body []byte) error {
	var eb struct {
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return schema.NewError(schema.ErrCodeRemote, fmt.Sprintf("%s: %s", prefix, msg)).
		WithDetails(map[string]any{"status": status})
}
