package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

var errMissingTicket = errors.New("event has no ticket id")

// NotificationObserver is told how long a case event took to reach the worker.
type NotificationObserver interface {
	StartEvent()
	FinishEvent(duration time.Duration, err error)
	ObserveLag(lag time.Duration)
}

// CaseNotifier hands tickets opened in chat over to the support team log.
type CaseNotifier struct {
	observer NotificationObserver
	now      func() time.Time
}

func NewCaseNotifier(observer NotificationObserver) *CaseNotifier {
	return &CaseNotifier{observer: observer, now: time.Now}
}

func (n *CaseNotifier) HandleCaseCreated(_ context.Context, event domain.CaseCreatedEvent) (err error) {
	start := n.now()
	if n.observer != nil {
		n.observer.StartEvent()
		defer func() { n.observer.FinishEvent(n.now().Sub(start), err) }()
	}

	if event.TicketID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle case created", errMissingTicket)
	}
	if n.observer != nil && !event.OccurredAt.IsZero() {
		n.observer.ObserveLag(start.Sub(event.OccurredAt))
	}

	slog.Info("support_case_created",
		"ticket_id", event.TicketID,
		"session_id", event.SessionID,
		"email", event.Case.Email,
		"category", event.Case.Category,
		"title", event.Case.Title,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
