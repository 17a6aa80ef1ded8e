package alerts

import (
	"context"
	"regexp"

	"github.com/JakeFAU/pulseflow/internal/apperr"
)

// DefaultFromAddress is the sender used when none is configured.
const DefaultFromAddress = "PulseFlow <alerts@pulseflow.dev>"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailMessage is a rendered email ready for a transport.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender transmits a rendered email and returns the provider message id.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// ValidEmail reports whether destination looks like an email address.
func ValidEmail(destination string) bool {
	return emailPattern.MatchString(destination)
}

// NewEmailProvider returns a Provider that renders alerts and hands them to
// sender. A nil sender yields PROVIDER_UNAVAILABLE on every send.
func NewEmailProvider(sender EmailSender, opts ...Option) Provider {
	send := func(ctx context.Context, o Options) (DeliveryResult, error) {
		if sender == nil {
			return DeliveryResult{}, apperr.New(apperr.KindProviderUnavailable, "Email provider is not configured")
		}
		msg := EmailMessage{
			To:      o.Destination,
			Subject: EmailSubject(o.Signal, o.Change),
			Text:    EmailText(o.Signal, o.Change),
		}
		html, err := EmailHTML(o.Signal, o.Change)
		if err != nil {
			return DeliveryResult{}, apperr.Wrap(apperr.KindEmailError, err, "render email: %v", err)
		}
		msg.HTML = html
		if _, err := sender.Send(ctx, msg); err != nil {
			return DeliveryResult{}, err
		}
		return DeliveryResult{}, nil
	}
	return Wrap(ChannelEmail, ValidEmail, send, opts...)
}
