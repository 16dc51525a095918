// Package dialer wraps the outbound voice-call provider API.
package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"aquaguard/internal/config"
)

// Caller dispatches one outbound call and reports whether the provider
// accepted it within the retry budget.
type Caller interface {
	Call(ctx context.Context, phoneNumber string, score float64) bool
}

type Client struct {
	cfg    config.DialerConfig
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg config.DialerConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type callRequest struct {
	AssistantID   string       `json:"assistantId"`
	PhoneNumberID string       `json:"phoneNumberId"`
	Customer      callCustomer `json:"customer"`
}

type callCustomer struct {
	Number string `json:"number"`
}

// Call posts one outbound-call request per attempt, retrying on transport
// errors and non-success statuses with a fixed backoff. Network and timeout
// failures are folded into a false result; nothing escapes to the caller.
func (c *Client) Call(ctx context.Context, phoneNumber string, score float64) bool {
	payload, err := json.Marshal(callRequest{
		AssistantID:   c.cfg.AssistantID,
		PhoneNumberID: c.cfg.PhoneNumberID,
		Customer:      callCustomer{Number: phoneNumber},
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Error("failed to encode call payload", "phone_number", phoneNumber, "err", err)
		}
		return false
	}

	attempts := c.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		ok := c.tryOnce(ctx, phoneNumber, score, payload, attempt, attempts)
		if ok {
			return true
		}
		if attempt < attempts {
			if !sleepCtx(ctx, c.cfg.RetryBackoff) {
				return false
			}
		}
	}
	return false
}

func (c *Client) tryOnce(ctx context.Context, phoneNumber string, score float64, payload []byte, attempt, attempts int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ProviderURL, bytes.NewReader(payload))
	if err != nil {
		if c.logger != nil {
			c.logger.Error("failed to build call request", "phone_number", phoneNumber, "err", err)
		}
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("call provider request failed",
				"phone_number", phoneNumber,
				"attempt", attempt,
				"attempts", attempts,
				"err", err,
			)
		}
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if c.logger != nil {
			c.logger.Info("outbound call dispatched",
				"phone_number", phoneNumber,
				"contamination_score", score,
			)
		}
		return true
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if c.logger != nil {
		c.logger.Error("call provider rejected request",
			"phone_number", phoneNumber,
			"attempt", attempt,
			"attempts", attempts,
			"status", resp.StatusCode,
			"body", string(body),
		)
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
