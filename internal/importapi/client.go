package importapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 5 * time.Minute

// APIError is returned when the remote service rejects a call, either with a non-2xx
// status or with IsSuccess=false in a 2xx body.
type APIError struct {
	Action     string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s %s", e.Action, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Action, e.StatusCode)
}

// Client is a thin JSON client for the remote import service.
type Client struct {
	baseURL    *url.URL
	endpoints  endpoints
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

type ClientOpt func(*Client)

func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) { c.httpClient = hc }
}

func WithPathPrefix(prefix string) ClientOpt {
	return func(c *Client) { c.endpoints = newEndpoints(prefix) }
}

// WithRateLimit caps outbound requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) ClientOpt {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithClientLogger(logger zerolog.Logger) ClientOpt {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL string, tokens TokenProvider, opts ...ClientOpt) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}

	c := &Client{
		baseURL:    u,
		endpoints:  newEndpoints(DefaultPathPrefix),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolve(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

// do sends one request and returns the status code and raw body.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errors.Wrap(err, "encode request body")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Header", "-")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response body")
	}
	return resp.StatusCode, raw, nil
}

// post issues a write call and checks both the status and the IsSuccess flag. A 2xx
// body that cannot be decoded is accepted with a warning.
func (c *Client) post(ctx context.Context, action, path string, payload interface{}) error {
	status, raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return errors.Wrap(err, action)
	}
	return c.ensureSuccess(ctx, action, status, raw)
}

func (c *Client) ensureSuccess(ctx context.Context, action string, status int, raw []byte) error {
	logger := c.loggerFor(ctx)
	var envelope apiResponse
	decodeErr := json.Unmarshal(raw, &envelope)

	if status < 200 || status > 299 {
		apiErr := &APIError{Action: action, StatusCode: status}
		if decodeErr == nil {
			apiErr.Code, apiErr.Message = envelope.ErrorCode, envelope.ErrorMessage
		} else {
			apiErr.Message = truncate(string(raw), 512)
		}
		logger.Error().Int("status", status).Str("body", truncate(string(raw), 2048)).Msg(action)
		return apiErr
	}

	if decodeErr != nil {
		logger.Warn().Err(decodeErr).Str("action", action).Msg("could not decode response body, assuming success")
		return nil
	}
	if !envelope.IsSuccess {
		logger.Error().Str("error_code", envelope.ErrorCode).Str("error_message", envelope.ErrorMessage).Msg(action)
		return &APIError{Action: action, StatusCode: status, Code: envelope.ErrorCode, Message: envelope.ErrorMessage}
	}
	return nil
}

// get decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	status, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &APIError{Action: "GET " + path, StatusCode: status, Message: truncate(string(raw), 512)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

func (c *Client) CreateJob(ctx context.Context, workspaceID int64, importID uuid.UUID, applicationName, correlationID string) error {
	return c.post(ctx, "create import job", c.endpoints.importJob(workspaceID, importID), createJobPayload{
		ApplicationName: applicationName,
		CorrelationID:   correlationID,
	})
}

func (c *Client) ConfigureRdo(ctx context.Context, workspaceID int64, importID uuid.UUID, artifactTypeID int64, mappings []FieldMapping) error {
	payload := rdoConfigurationPayload{ImportSettings: importRdoSettings{
		Fields: fieldsSettings{FieldMappings: mappings},
		Rdo:    rdoSettings{ArtifactTypeID: artifactTypeID},
	}}
	return c.post(ctx, "configure rdo settings", c.endpoints.rdoConfiguration(workspaceID, importID), payload)
}

func (c *Client) AddDataSource(ctx context.Context, workspaceID int64, importID, sourceID uuid.UUID, settings DataSourceSettings) error {
	return c.post(ctx, "add data source", c.endpoints.source(workspaceID, importID, sourceID), dataSourcePayload{DataSourceSettings: settings})
}

func (c *Client) Begin(ctx context.Context, workspaceID int64, importID uuid.UUID) error {
	return c.post(ctx, "begin import job", c.endpoints.begin(workspaceID, importID), nil)
}

func (c *Client) End(ctx context.Context, workspaceID int64, importID uuid.UUID) error {
	return c.post(ctx, "end import job", c.endpoints.end(workspaceID, importID), nil)
}

// SourceState returns the data source state. ok is false when the service answered
// with IsSuccess=false.
func (c *Client) SourceState(ctx context.Context, workspaceID int64, importID, sourceID uuid.UUID) (state State, ok bool, err error) {
	var resp detailsResponse
	if err := c.get(ctx, c.endpoints.sourceDetails(workspaceID, importID, sourceID), &resp); err != nil {
		return "", false, err
	}
	return resp.Value.State, resp.IsSuccess, nil
}

func (c *Client) SourceProgress(ctx context.Context, workspaceID int64, importID, sourceID uuid.UUID) (*Progress, error) {
	var resp progressResponse
	if err := c.get(ctx, c.endpoints.sourceProgress(workspaceID, importID, sourceID), &resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess {
		return nil, &APIError{Action: "get import progress", StatusCode: http.StatusOK, Code: resp.ErrorCode, Message: resp.ErrorMessage}
	}
	return &resp.Value, nil
}

// loggerFor prefers the job-scoped logger carried on ctx.
func (c *Client) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.logger
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
