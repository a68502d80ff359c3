package notify

import (
	"context"
	"fmt"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

// Service notifies sales reps of new lead assignments through the outbound
// transport. Implements domain.AssignmentNotifier.
type Service struct {
	transport domain.MessageTransport
}

// NewService creates a new assignment notifier.
func NewService(transport domain.MessageTransport) *Service {
	return &Service{transport: transport}
}

// NotifyAssignment emails the rep about the newly assigned contact.
func (s *Service) NotifyAssignment(ctx context.Context, rep *domain.SalesRep, contact *domain.Contact) error {
	subject := fmt.Sprintf("New lead assigned: %s", contact.Name)
	body := fmt.Sprintf(
		"Hi %s,\n\nThe lead %s (%s) has been assigned to you.\n\nCompany: %s\nSource: %s\nIndustry: %s\n",
		rep.Name, contact.Name, contact.Email, contact.Company, contact.Source, contact.Industry)
	return s.transport.Send(ctx, rep.Email, subject, body)
}
