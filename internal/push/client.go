// Package push wraps the outbound push-delivery provider. The client
// speaks an FCM-style legacy HTTP API: one POST per message, addressed
// by device token, with a notification block for display and a data
// block for the client application. Delivery here means provider
// acknowledgment, not device receipt.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message is one outbound push notification. Data travels opaque to
// the provider and is handed to the receiving app as-is; every value
// is a string because that is all the transport guarantees.
type Message struct {
	Token    string            // device push token to address
	Title    string            // display title
	Body     string            // display body
	Data     map[string]string // structured payload for the client app
	Priority string            // "high" requests immediate handling
}

// Sender delivers one message and reports the provider's verdict.
// The notify dispatcher consumes this interface; tests substitute a
// fake implementation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrDeliveryFailed wraps any provider-side rejection: invalid token,
// provider error status, malformed response.
var ErrDeliveryFailed = errors.New("push delivery failed")

// Client is a Sender backed by the provider's HTTP endpoint.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient builds a push client for the given provider endpoint and
// server key. The per-request timeout is deliberately short: a push
// send blocks an emergency fan-out slot, so a slow provider must fail
// the attempt rather than stall it. No transport-level retries are
// configured; a rejected send is surfaced once to the caller, which
// records it per contact.
func NewClient(baseURL, serverKey string, timeout time.Duration, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+serverKey)
	return &Client{httpClient: c, logger: logger}
}

type sendRequest struct {
	To           string            `json:"to"`
	Priority     string            `json:"priority"`
	Notification sendNotification  `json:"notification"`
	Data         map[string]string `json:"data"`
}

type sendNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

type sendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send posts one message and waits for the provider acknowledgment.
// Any transport error, non-2xx status or per-message provider error is
// returned wrapped in ErrDeliveryFailed; context deadline errors pass
// through unwrapped so callers can classify timeouts separately.
func (c *Client) Send(ctx context.Context, msg Message) error {
	req := sendRequest{
		To:       msg.Token,
		Priority: msg.Priority,
		Notification: sendNotification{
			Title: msg.Title,
			Body:  msg.Body,
			Sound: "default",
		},
		Data: msg.Data,
	}

	var out sendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/fcm/send")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if resp.IsError() {
		c.logger.Warn("push provider returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("%w: provider status %d", ErrDeliveryFailed, resp.StatusCode())
	}
	if out.Failure > 0 {
		reason := "unknown"
		if len(out.Results) > 0 && out.Results[0].Error != "" {
			reason = out.Results[0].Error
		}
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, reason)
	}
	return nil
}
