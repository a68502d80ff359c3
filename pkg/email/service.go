package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jordanlanch/salespilot/pkg/logger"
)

// Service is the outbound message transport. With a SendGrid API key it
// sends real email; without one it logs the message and reports success
// (development mode).
type Service struct {
	fromEmail   string
	fromName    string
	sendGridKey string
	useSendGrid bool
	log         logger.Logger
}

// NewService creates a new email transport.
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Info("email transport initialized with SendGrid")
	} else {
		log.Warn("email transport in console-only mode (set SENDGRID_API_KEY for production)")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		sendGridKey: sendGridAPIKey,
		useSendGrid: useSendGrid,
		log:         log,
	}
}

// Send delivers one message to a recipient. Implements
// domain.MessageTransport.
func (s *Service) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("recipient address is empty")
	}

	if !s.useSendGrid {
		s.log.Info("email not sent (development mode)",
			"to", recipient, "subject", subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", recipient)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.log.Debug("email sent", "to", recipient, "status", response.StatusCode)
	return nil
}
