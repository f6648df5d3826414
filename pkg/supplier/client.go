package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// Synthetic envelope values used when the supplier could not be reached
const (
	TransportErrorCode    = 1
	TransportErrorMessage = "Something went wrong"
)

// agencyApprovalMessage replaces supplier messages about the agency account
const agencyApprovalMessage = "Waiting for admin approval"

// Credentials are the static account headers sent on every call
type Credentials struct {
	Username string
	Password string
}

// Config holds configuration for the supplier client
type Config struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration // per attempt
	MaxAttempts int
	BaseDelay   time.Duration // doubled after every failed attempt
}

// ErrorDetail is the Error object of the supplier envelope
type ErrorDetail struct {
	ErrorCode    int    `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// Envelope is the response shape of every supplier endpoint
type Envelope struct {
	UserIP        string          `json:"UserIp"`
	SearchTokenID string          `json:"SearchTokenId"`
	Error         ErrorDetail     `json:"Error"`
	Result        json.RawMessage `json:"Result"`
}

// Error is a supplier-side failure. Transport is set when the supplier was
// unreachable or answered with a non-200 status after all retries.
type Error struct {
	Code      int
	Message   string
	Transport bool
}

func (e *Error) Error() string {
	return e.Message
}

// Result is the outcome of a supplier call: either OK, or Err is set
type Result struct {
	OK            bool
	Err           *Error
	SearchTokenID string
}

// Sleeper waits between retries
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type contextSleeper struct{}

func (contextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CallObserver is notified after each logical call (all attempts included)
type CallObserver func(endpoint, outcome string, duration time.Duration)

// Client calls the BDSD reservation API
type Client struct {
	config   Config
	http     *http.Client
	sleeper  Sleeper
	logger   *logrus.Logger
	observer CallObserver
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleeper replaces the backoff sleeper
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithObserver registers a call observer (metrics)
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a new supplier client
func NewClient(config Config, logger *logrus.Logger, opts ...Option) *Client {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	c := &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		sleeper: contextSleeper{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts params to endpoint and decodes the envelope Result into out.
// It never returns a Go error: transport failures become the synthetic
// {ErrorCode: 1, ErrorMessage: "Something went wrong"} envelope.
func (c *Client) Call(ctx context.Context, endpoint string, params interface{}, out interface{}) Result {
	start := time.Now()
	ctx, span := otel.Tracer("supplier").Start(ctx, "supplier "+endpoint)
	defer span.End()
	span.SetAttributes(attribute.String("supplier.endpoint", endpoint))

	envelope, transport := c.post(ctx, endpoint, params)
	result := c.toResult(endpoint, envelope, transport, out)

	outcome := "success"
	if !result.OK {
		outcome = "supplier_error"
		if result.Err.Transport {
			outcome = "transport_error"
		}
		span.SetStatus(codes.Error, result.Err.Message)
	}
	if c.observer != nil {
		c.observer(endpoint, outcome, time.Since(start))
	}
	return result
}

func (c *Client) toResult(endpoint string, envelope Envelope, transport bool, out interface{}) Result {
	if envelope.Error.ErrorMessage != "" {
		return Result{
			SearchTokenID: envelope.SearchTokenID,
			Err: &Error{
				Code:      envelope.Error.ErrorCode,
				Message:   UserFacingMessage(envelope.Error.ErrorMessage),
				Transport: transport,
			},
		}
	}

	if out != nil {
		if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
			c.logger.WithField("endpoint", endpoint).Warn("Supplier returned success without a result")
			return Result{Err: &Error{Code: TransportErrorCode, Message: TransportErrorMessage, Transport: true}}
		}
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			c.logger.WithError(err).WithField("endpoint", endpoint).Error("Failed to decode supplier result")
			return Result{Err: &Error{Code: TransportErrorCode, Message: TransportErrorMessage, Transport: true}}
		}
	}

	return Result{OK: true, SearchTokenID: envelope.SearchTokenID}
}

// post performs the request with bounded retries. The bool reports that the
// returned envelope is the synthetic transport failure.
func (c *Client) post(ctx context.Context, endpoint string, params interface{}) (Envelope, bool) {
	body, err := json.Marshal(params)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Error("Failed to encode supplier request")
		return transportFailure(), true
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BaseDelay
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				break
			}
		}

		envelope, retry, err := c.attempt(ctx, url, body)
		if err == nil {
			return envelope, false
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  attempt + 1,
			"retry":    retry,
		}).Warn("Supplier call failed")

		if !retry {
			break
		}
	}

	return transportFailure(), true
}

// attempt performs one HTTP round trip. retry reports whether the failure is transient.
func (c *Client) attempt(ctx context.Context, url string, body []byte) (Envelope, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Envelope{}, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Username", c.config.Credentials.Username)
	req.Header.Set("Password", c.config.Credentials.Password)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		// network errors and per-attempt timeouts are transient unless the caller gave up
		return Envelope{}, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return Envelope{}, retry, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope Envelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return Envelope{}, false, fmt.Errorf("failed to decode envelope: %w", err)
	}

	return envelope, false, nil
}

func transportFailure() Envelope {
	return Envelope{Error: ErrorDetail{ErrorCode: TransportErrorCode, ErrorMessage: TransportErrorMessage}}
}

// UserFacingMessage rewrites supplier messages that should not reach the client verbatim
func UserFacingMessage(message string) string {
	if strings.Contains(message, "Agency") {
		return agencyApprovalMessage
	}
	return message
}

// AsError extracts a supplier *Error from err
func AsError(err error) (*Error, bool) {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
