package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/JakeFAU/pulseflow/internal/apperr"
)

// resendEmails is the subset of the Resend client used for delivery.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers email through the Resend API.
type ResendSender struct {
	emails resendEmails
	from   string
}

// NewResendSender builds a sender for apiKey. An empty key yields
// PROVIDER_UNAVAILABLE.
func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.KindProviderUnavailable, "Resend API key is not configured")
	}
	client := resend.NewClient(apiKey)
	return newResendSender(client.Emails, from), nil
}

func newResendSender(emails resendEmails, from string) *ResendSender {
	if from == "" {
		from = DefaultFromAddress
	}
	return &ResendSender{emails: emails, from: from}
}

// Send implements EmailSender.
func (s *ResendSender) Send(ctx context.Context, msg EmailMessage) (string, error) {
	resp, err := s.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return "", errors.New("Failed to send email - no ID returned") //nolint:staticcheck // user-facing message
	}
	return resp.Id, nil
}
