package musicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	generatePath   = "/api/v1/generate"
	recordInfoPath = "/api/v1/generate/record-info"

	maxBackoff    = 10 * time.Second
	maxRetryAfter = 30 * time.Second
	maxBodyBytes  = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	MaxRetries        int
	RetryDelay        time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a rate limited, retrying provider client.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ generation.Provider = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", generation.ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", generation.ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}

	return &Client{
		cfg:     cfg,
		base:    base,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "musicapi"),
	}, nil
}

// Submit requests a new generation task.
func (c *Client) Submit(ctx context.Context, s generation.Submission) (*generation.Accepted, error) {
	model := s.Model
	if model == "" {
		model = c.cfg.Model
	}
	req := generateRequest{
		Prompt:       s.Prompt,
		Instrumental: s.Instrumental,
		Model:        model,
		CallBackURL:  s.CallbackURL,
	}

	env, raw, err := c.call(ctx, http.MethodPost, generatePath, nil, req)
	if err != nil {
		return nil, err
	}

	var data generateData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return nil, fmt.Errorf("%w: missing task id", generation.ErrInvalidResponse)
	}
	return &generation.Accepted{TaskID: data.TaskID, Raw: raw}, nil
}

// FetchTask polls the current state of a task.
func (c *Client) FetchTask(ctx context.Context, taskID string) (*generation.TaskEvent, error) {
	query := url.Values{"taskId": []string{taskID}}
	env, raw, err := c.call(ctx, http.MethodGet, recordInfoPath, query, nil)
	if err != nil {
		return nil, err
	}

	var info recordInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	status, err := recordStatus(info.Status)
	if err != nil {
		return nil, err
	}

	event := &generation.TaskEvent{
		TaskID: taskID,
		Status: status,
		Error:  info.ErrorMessage,
		Source: generation.SourcePoll,
		Raw:    raw,
	}
	if status == domain.StatusCompleted {
		event.Results = recordResults(info.Response.SunoData)
	}
	return event, nil
}

// call performs one logical request with rate limiting and bounded retry of
// transient failures.
func (c *Client) call(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
) (*envelope, json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	backoff := retry.NewExponential(c.cfg.RetryDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxRetries), backoff)

	var (
		env     *envelope
		raw     json.RawMessage
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var wait time.Duration
		var err error
		env, raw, wait, err = c.once(ctx, method, path, query, payload)
		if err == nil {
			return nil
		}
		if !generation.IsTransient(err) || ctx.Err() != nil {
			return err
		}

		c.logger.WarnContext(ctx, "provider request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err)
		if wait > 0 {
			if werr := sleep(ctx, wait); werr != nil {
				return werr
			}
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "provider request failed",
			"method", method,
			"path", path,
			"attempts", attempt,
			"error", err)
		return nil, nil, err
	}
	return env, raw, nil
}

// once performs a single HTTP exchange. The returned duration is a
// server-requested delay before the next attempt.
func (c *Client) once(
	ctx context.Context,
	method, path string,
	query url.Values,
	payload []byte,
) (*envelope, json.RawMessage, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), bodyReader)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, 0, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, 0, classifyTransportError(ctx, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode != http.StatusOK {
		msg := env.Msg
		if decodeErr != nil {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, nil, parseRetryAfter(resp), classifyHTTPStatus(resp.StatusCode, env.Code, msg)
	}
	if decodeErr != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, decodeErr)
	}
	if env.Code != http.StatusOK {
		return nil, nil, 0, classifyBodyCode(env.Code, env.Msg)
	}
	return &env, json.RawMessage(raw), 0, nil
}

// classifyHTTPStatus maps a non-200 HTTP status to the taxonomy.
func classifyHTTPStatus(status, code int, msg string) error {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = generation.ErrAuthentication
	case status == http.StatusPaymentRequired:
		sentinel = generation.ErrInsufficientCredits
	case status == http.StatusTooManyRequests:
		sentinel = generation.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		sentinel = generation.ErrTimeout
	case status >= 500:
		sentinel = generation.ErrNetwork
	default:
		sentinel = generation.ErrInvalidRequest
	}
	return &generation.ProviderError{StatusCode: status, Code: code, Message: msg, Err: sentinel}
}

// classifyBodyCode maps the envelope code of an HTTP 200 answer. The provider
// reports exhausted credits as 429 and throttling as 430 in the body.
func classifyBodyCode(code int, msg string) error {
	var sentinel error
	switch code {
	case 401, 403:
		sentinel = generation.ErrAuthentication
	case 402, 429:
		sentinel = generation.ErrInsufficientCredits
	case 430:
		sentinel = generation.ErrRateLimited
	case 455, 500, 502, 503:
		sentinel = generation.ErrNetwork
	default:
		sentinel = generation.ErrInvalidRequest
	}
	return &generation.ProviderError{StatusCode: http.StatusOK, Code: code, Message: msg, Err: sentinel}
}

// classifyTransportError distinguishes caller cancellation from per-request
// timeouts and connection failures.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", generation.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", generation.ErrNetwork, err)
}

// parseRetryAfter reads a Retry-After header and returns the duration to wait,
// capped at maxRetryAfter.
func parseRetryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	var d time.Duration
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		d = time.Duration(seconds) * time.Second
	} else if t, err := http.ParseTime(ra); err == nil {
		d = time.Until(t)
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	if d < 0 {
		return 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
