package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/gosuda/floe/internal/interaction"
)

const (
	defaultAPIBase     = "https://discord.com/api/v10"
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultTimeout     = 10 * time.Second
)

var (
	// ErrDeliveryFailed wraps any error that exhausted the retry budget or was
	// terminal on the first attempt.
	ErrDeliveryFailed = errors.New("discord: delivery failed")

	// ErrDeliveryInFlight is returned when a second delivery is attempted for
	// an interaction token whose first delivery has not finished.
	ErrDeliveryInFlight = errors.New("discord: delivery already in flight")

	// ErrNotDeliverable is returned when a response variant has no follow-up
	// representation, such as a deferral or a pong.
	ErrNotDeliverable = errors.New("discord: response is not deliverable as a follow-up")
)

// StatusError is a non-2xx reply from the platform API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the Discord REST API for everything that happens after the
// synchronous interaction window: webhook follow-ups, edits and deletes of the
// original response, and bot-authenticated command registration.
//
// Outbound calls go through a circuit breaker so a platform outage fails fast
// instead of stacking retry loops. Client-side rejections (4xx other than 429)
// do not trip the breaker.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	appID       snowflake.ID
	botToken    string
	maxAttempts int
	baseBackoff time.Duration
	breaker     *gobreaker.CircuitBreaker[[]byte]

	inFlight sync.Map // interaction token -> struct{}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different API base, without a trailing
// slash. Used against httptest servers and proxies.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithMaxAttempts bounds the retry budget per call, including the first
// attempt.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the delay before the first retry. Each further retry
// doubles it.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseBackoff = d
		}
	}
}

// NewClient builds a Client for the given application. The bot token is only
// needed for command management; pass an empty string when the client is used
// purely for webhook follow-ups.
func NewClient(appID snowflake.ID, botToken string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     defaultAPIBase,
		appID:       appID,
		botToken:    botToken,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "discord-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				// The platform is healthy, the request was just wrong.
				return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return false
		},
	})

	return c
}

// SendFollowup posts a new follow-up message on an interaction's webhook.
func (c *Client) SendFollowup(ctx context.Context, token string, resp *interaction.Response) error {
	body, err := followupBody(resp)
	if err != nil {
		return fmt.Errorf("discord.Client.SendFollowup: %w", err)
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s", c.baseURL, c.appID, token)
	if err := c.do(ctx, http.MethodPost, url, "", body); err != nil {
		return fmt.Errorf("discord.Client.SendFollowup: %w", err)
	}
	return nil
}

// EditOriginal replaces the original interaction response. For a deferred
// interaction this fills in the deferral placeholder.
func (c *Client) EditOriginal(ctx context.Context, token string, resp *interaction.Response) error {
	body, err := followupBody(resp)
	if err != nil {
		return fmt.Errorf("discord.Client.EditOriginal: %w", err)
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", c.baseURL, c.appID, token)
	if err := c.do(ctx, http.MethodPatch, url, "", body); err != nil {
		return fmt.Errorf("discord.Client.EditOriginal: %w", err)
	}
	return nil
}

// DeleteOriginal removes the original interaction response.
func (c *Client) DeleteOriginal(ctx context.Context, token string) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", c.baseURL, c.appID, token)
	if err := c.do(ctx, http.MethodDelete, url, "", nil); err != nil {
		return fmt.Errorf("discord.Client.DeleteOriginal: %w", err)
	}
	return nil
}

// EditFollowup edits a previously sent follow-up message by its message ID.
func (c *Client) EditFollowup(ctx context.Context, token string, messageID snowflake.ID, resp *interaction.Response) error {
	body, err := followupBody(resp)
	if err != nil {
		return fmt.Errorf("discord.Client.EditFollowup: %w", err)
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", c.baseURL, c.appID, token, messageID)
	if err := c.do(ctx, http.MethodPatch, url, "", body); err != nil {
		return fmt.Errorf("discord.Client.EditFollowup: %w", err)
	}
	return nil
}

// SyncCommands bulk-overwrites the application's global command set. Requires
// the bot token.
func (c *Client) SyncCommands(ctx context.Context, specs []interaction.CommandSpec) error {
	if c.botToken == "" {
		return errors.New("discord.Client.SyncCommands: bot token not configured")
	}
	if specs == nil {
		specs = []interaction.CommandSpec{}
	}
	body, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("discord.Client.SyncCommands: %w", err)
	}
	url := fmt.Sprintf("%s/applications/%s/commands", c.baseURL, c.appID)
	if err := c.do(ctx, http.MethodPut, url, "Bot "+c.botToken, body); err != nil {
		return fmt.Errorf("discord.Client.SyncCommands: %w", err)
	}
	return nil
}

// Deliver resolves a deferred interaction by editing its placeholder with the
// handler's eventual result. At most one delivery may be in flight per
// interaction token; a concurrent second call fails with ErrDeliveryInFlight
// instead of risking a double send.
func (c *Client) Deliver(ctx context.Context, token string, resp *interaction.Response) error {
	if resp == nil || resp.IsDeferral() || resp.Type == interaction.ResponsePong ||
		resp.Type == interaction.ResponseModal || resp.Type == interaction.ResponseAutocompleteResult {
		return fmt.Errorf("discord.Client.Deliver: %w", ErrNotDeliverable)
	}

	if _, loaded := c.inFlight.LoadOrStore(token, struct{}{}); loaded {
		return fmt.Errorf("discord.Client.Deliver: %w", ErrDeliveryInFlight)
	}
	defer c.inFlight.Delete(token)

	return c.EditOriginal(ctx, token, resp)
}

// do runs one request with the bounded retry loop. Transient failures (5xx,
// 429, connection resets) retry with doubling backoff; everything else is
// terminal. Timeouts are terminal even though they smell transient: the
// request may have landed, and resending would risk a duplicate.
func (c *Client) do(ctx context.Context, method, url, auth string, body []byte) error {
	backoff := c.baseBackoff
	var lastErr error

	for attempt := 1; ; attempt++ {
		lastErr = c.once(ctx, method, url, auth, body)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt >= c.maxAttempts {
			return fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
		}

		log.Debug().
			Str("method", method).
			Str("url", url).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("retrying platform request")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrDeliveryFailed, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// once runs a single attempt through the circuit breaker.
func (c *Client) once(ctx context.Context, method, url, auth string, body []byte) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, &StatusError{Code: httpResp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
		}
		return respBody, nil
	})
	return err
}

// retryable reports whether another attempt could plausibly succeed without
// risking a duplicate delivery.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}

	var ne net.Error
	if errors.As(err, &ne) {
		// An ambiguous timeout may mean the request landed.
		return !ne.Timeout()
	}
	return false
}

// followupBody serializes the payload a webhook endpoint expects: the inner
// data object, not the type-tagged synchronous envelope.
func followupBody(resp *interaction.Response) ([]byte, error) {
	data := resp.Data
	if data == nil {
		data = &interaction.ResponseData{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return body, nil
}
