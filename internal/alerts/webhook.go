package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/changes"
)

// Webhook constants.
const (
	WebhookEvent          = "pulse.change_detected"
	WebhookEventHeader    = "X-PulseFlow-Event"
	DefaultWebhookTimeout = 10 * time.Second
)

var webhookPattern = regexp.MustCompile(`^https?://.+`)

// ValidWebhookURL reports whether destination is an http(s) URL.
func ValidWebhookURL(destination string) bool {
	return webhookPattern.MatchString(destination)
}

// WebhookPayload is the JSON body posted to webhook destinations.
type WebhookPayload struct {
	Event     string        `json:"event"`
	Timestamp string        `json:"timestamp"`
	Signal    Signal        `json:"signal"`
	Change    WebhookChange `json:"change"`
	PulseID   string        `json:"pulseId,omitempty"`
}

// WebhookChange summarizes the change in a webhook payload.
type WebhookChange struct {
	Type    *changes.Type `json:"type"`
	Summary string        `json:"summary"`
	Stats   changes.Stats `json:"stats"`
	Items   WebhookItems  `json:"items"`
}

// WebhookItems lists the itemized differences.
type WebhookItems struct {
	Added   []changes.Item        `json:"added"`
	Removed []changes.Item        `json:"removed"`
	Updated []changes.UpdatedItem `json:"updated"`
}

// WebhookConfig configures NewWebhookProvider.
type WebhookConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Now     func() time.Time
}

// BuildWebhookPayload assembles the payload for opts.
func BuildWebhookPayload(opts Options, at time.Time) WebhookPayload {
	d := opts.Change.Details
	return WebhookPayload{
		Event:     WebhookEvent,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Signal:    opts.Signal,
		Change: WebhookChange{
			Type:    opts.Change.ChangeType,
			Summary: opts.Change.Summary,
			Stats:   d.Stats,
			Items: WebhookItems{
				Added:   nonNil(d.Added),
				Removed: nonNil(d.Removed),
				Updated: nonNilUpdated(d.Updated),
			},
		},
		PulseID: opts.PulseID,
	}
}

// NewWebhookProvider returns a Provider that POSTs JSON payloads.
func NewWebhookProvider(cfg WebhookConfig, opts ...Option) Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	send := func(ctx context.Context, o Options) (DeliveryResult, error) {
		body, err := json.Marshal(BuildWebhookPayload(o, now()))
		if err != nil {
			return DeliveryResult{}, apperr.Wrap(apperr.KindWebhookError, err, "encode webhook payload: %v", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.Destination, bytes.NewReader(body))
		if err != nil {
			return DeliveryResult{}, apperr.Wrap(apperr.KindWebhookError, err, "build webhook request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "PulseFlow/1.0")
		req.Header.Set(WebhookEventHeader, WebhookEvent)

		resp, err := client.Do(req)
		if err != nil {
			if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return DeliveryResult{}, apperr.Wrap(apperr.KindWebhookTimeout, err,
					"Webhook request timed out after %dms", timeout.Milliseconds())
			}
			return DeliveryResult{}, fmt.Errorf("webhook request: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return DeliveryResult{}, apperr.New(apperr.KindWebhookError, "Webhook returned status %d: %s",
				resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return DeliveryResult{DeliveredAt: now()}, nil
	}
	return Wrap(ChannelWebhook, ValidWebhookURL, send, opts...)
}

func nonNil(items []changes.Item) []changes.Item {
	if items == nil {
		return []changes.Item{}
	}
	return items
}

func nonNilUpdated(items []changes.UpdatedItem) []changes.UpdatedItem {
	if items == nil {
		return []changes.UpdatedItem{}
	}
	return items
}
