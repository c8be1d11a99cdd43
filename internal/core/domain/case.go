package domain

import "time"

type CaseStatus string

const (
	CaseStatusOpen   CaseStatus = "Open"
	CaseStatusClosed CaseStatus = "Closed"
)

type Case struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      CaseStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CaseFields struct {
	Email       string
	Category    string
	Title       string
	Description string
	Status      CaseStatus
}

// TicketID is the identifier shown to customers for a created case.
func TicketID(caseID string) string {
	return "TKT-" + caseID
}

// CaseCreatedEvent notifies the support team about a ticket opened in chat.
type CaseCreatedEvent struct {
	TicketID   string    `json:"ticket_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Case       Case      `json:"case"`
	OccurredAt time.Time `json:"occurred_at"`
}
