// Package notify sends session confirmation emails to clients.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mindora-health/mindora-platform/internal/booking"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// Contact is the client-facing identity used for email delivery.
type Contact struct {
	Name  string
	Email string
}

// ClientDirectory resolves a client id to their contact details.
type ClientDirectory interface {
	Contact(ctx context.Context, clientID string) (Contact, error)
}

// Service builds and sends booking confirmations. It implements the booking
// package's Notifier; failures there are already best-effort, so this service
// only has to report them.
type Service struct {
	sender    EmailSender
	directory ClientDirectory
	loc       *time.Location
	logger    *logging.Logger
}

// NewService creates the confirmation service. Session dates render in loc,
// the platform timezone.
func NewService(sender EmailSender, directory ClientDirectory, loc *time.Location, logger *logging.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sender:    sender,
		directory: directory,
		loc:       loc,
		logger:    logger,
	}
}

// SessionBooked emails the client a confirmation of their new session.
func (s *Service) SessionBooked(ctx context.Context, session *booking.Session) error {
	subject := fmt.Sprintf("Your Mindora %s is confirmed", kindLabel(session.Kind))
	body := fmt.Sprintf(
		"Hi %%s,\n\nYour %s is confirmed for %s.\n\nIf you need to reschedule, you can do so up until the session starts.\n\nWarm regards,\nMindora Health",
		kindLabel(session.Kind), s.formatWhen(session),
	)
	return s.send(ctx, session, subject, body)
}

// SessionRescheduled emails the client their updated session time.
func (s *Service) SessionRescheduled(ctx context.Context, session *booking.Session) error {
	subject := fmt.Sprintf("Your Mindora %s has been rescheduled", kindLabel(session.Kind))
	body := fmt.Sprintf(
		"Hi %%s,\n\nYour %s has moved to %s.\n\nIf this time no longer works, you can reschedule again anytime before the session.\n\nWarm regards,\nMindora Health",
		kindLabel(session.Kind), s.formatWhen(session),
	)
	return s.send(ctx, session, subject, body)
}

func (s *Service) send(ctx context.Context, session *booking.Session, subject, bodyTemplate string) error {
	if s.sender == nil {
		s.logger.Debug("notify: email disabled, skipping confirmation", "session_id", session.ID)
		return nil
	}
	if s.directory == nil {
		s.logger.Debug("notify: no client directory, skipping confirmation", "session_id", session.ID)
		return nil
	}

	contact, err := s.directory.Contact(ctx, session.ClientID)
	if err != nil {
		return fmt.Errorf("notify: resolve client contact: %w", err)
	}
	if contact.Email == "" {
		s.logger.Warn("notify: client has no email on file", "client_id", session.ClientID)
		return nil
	}

	name := contact.Name
	if name == "" {
		name = "there"
	}

	return s.sender.Send(ctx, EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: subject,
		Body:    fmt.Sprintf(bodyTemplate, name),
	})
}

// formatWhen renders the session's local start time, falling back to the raw
// stored values if they fail to parse.
func (s *Service) formatWhen(session *booking.Session) string {
	when, err := time.ParseInLocation("2006-01-02 15:04", session.Date+" "+session.StartTime, s.loc)
	if err != nil {
		return session.Date + " at " + session.StartTime
	}
	return when.Format("Monday, January 2 at 3:04 PM")
}

func kindLabel(kind booking.Kind) string {
	if kind == booking.KindAssessment {
		return "assessment"
	}
	return "therapy session"
}
