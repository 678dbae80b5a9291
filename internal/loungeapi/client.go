package loungeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"lounge-desk/internal/observability/metrics"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultFailures     = 5
	defaultOpenInterval = 30 * time.Second
	maxErrorBody        = 64 << 10
)

var (
	// ErrInvalidSessionID is returned for session ids that are not UUIDs.
	ErrInvalidSessionID = errors.New("loungeapi: invalid session id")
	// ErrMalformedResponse marks payloads that fail decoding or schema validation.
	ErrMalformedResponse = errors.New("loungeapi: malformed response")
	// ErrUnavailable marks calls rejected by the open circuit breaker.
	ErrUnavailable = errors.New("loungeapi: backend unavailable")
	// ErrBillUnread means finalize succeeded but the bill could not be re-read.
	ErrBillUnread = errors.New("loungeapi: bill finalized but not re-read")
)

// APIError describes a failed backend call. Status is zero for transport failures.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("loungeapi: %s: http %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("loungeapi: %s: %s", e.Op, msg)
}

// Unwrap returns the cause.
func (e *APIError) Unwrap() error { return e.Err }

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker trips after consecutive failures and stays open for openFor.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *Client) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if openFor > 0 {
			c.breakerOpenFor = openFor
		}
	}
}

// Client is a JSON/HTTP client for the lounge backend.
type Client struct {
	baseURL  string
	token    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	validate *validator.Validate
	logger   *log.Logger

	breakerFailures uint32
	breakerOpenFor  time.Duration
}

// NewClient constructs a client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("loungeapi: empty base url")
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: defaultTimeout},
		validate:        newValidator(),
		breakerFailures: defaultFailures,
		breakerOpenFor:  defaultOpenInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	failures := c.breakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lounge-backend",
		MaxRequests: 1,
		Timeout:     c.breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			if c.logger != nil {
				c.logger.Printf("loungeapi breaker: name=%s from=%s to=%s", name, from, to)
			}
		},
	})
	return c, nil
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, Message: "encode request", Err: err}
		}
		payload = encoded
	}
	requestID := uuid.NewString()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, payload, requestID)
	})
	outcome := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBackendRequest(op, outcome, time.Since(start))
	}()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		outcome = metrics.ResultError
		return &APIError{Op: op, Message: "lounge backend unavailable", Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	resp, _ := result.(*rawResponse)
	if err != nil {
		outcome = metrics.ResultError
		if resp != nil {
			return &APIError{Op: op, Status: resp.status, Message: backendMessage(resp.body), Err: err}
		}
		c.logf("loungeapi request error: op=%s request_id=%s err=%v", op, requestID, err)
		return &APIError{Op: op, Err: err}
	}
	if resp.status >= http.StatusMultipleChoices {
		outcome = metrics.ResultError
		return &APIError{Op: op, Status: resp.status, Message: backendMessage(resp.body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		outcome = metrics.ResultError
		return &APIError{Op: op, Status: resp.status, Message: "malformed response", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if err := c.check(out); err != nil {
		outcome = metrics.ResultError
		return &APIError{Op: op, Status: resp.status, Message: "malformed response", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// roundTrip returns an error for transport failures and 5xx so the breaker counts them.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, requestID string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	raw := &rawResponse{status: resp.StatusCode, body: data}
	if resp.StatusCode >= http.StatusInternalServerError {
		return raw, fmt.Errorf("http %d", resp.StatusCode)
	}
	return raw, nil
}

// check validates a decoded payload, element by element for slices.
func (c *Client) check(out any) error {
	value := reflect.ValueOf(out)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Struct:
		return c.validate.Struct(value.Interface())
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			item := value.Index(i)
			if item.Kind() != reflect.Struct {
				continue
			}
			if err := c.validate.Struct(item.Interface()); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}

// backendMessage extracts detail, message or error from an error body.
func backendMessage(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func sessionPath(sessionID string) (string, error) {
	trimmed := strings.TrimSpace(sessionID)
	if _, err := uuid.Parse(trimmed); err != nil || strings.ContainsAny(trimmed, "{}:") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return trimmed, nil
}
