package domain

import "time"

type Flow string

const (
	FlowNone             Flow = "none"
	FlowNewCustomer      Flow = "new_customer"
	FlowExistingCustomer Flow = "existing_customer"
	FlowGeneralInfo      Flow = "general_info"
)

type RouterStage string

const (
	RouterStageIntro      RouterStage = "intro"
	RouterStageChooseFlow RouterStage = "choose_flow"
)

type ExistingStage string

const (
	StageAskEmail         ExistingStage = "ask_email"
	StageWaitEmail        ExistingStage = "wait_email"
	StageHelpExistingCase ExistingStage = "help_existing_case"
	StageSelectCaseNumber ExistingStage = "select_case_number"
	StageAssistCase       ExistingStage = "assist_case"
	StageChooseCategory   ExistingStage = "choose_category"
	StageWaitIssueDesc    ExistingStage = "wait_issue_desc"
	StageConfirmTicket    ExistingStage = "confirm_ticket"
	StageDone             ExistingStage = "done"
)

type Intent string

const (
	IntentOnboardingFlow Intent = "onboarding_flow"
	IntentRAGQuery       Intent = "rag_query"
)

// ExistingCustomerState holds the triage stage and the slots collected so far.
// OpenCases is a snapshot taken at email lookup and never refreshed.
type ExistingCustomerState struct {
	Stage            ExistingStage `json:"stage"`
	Email            string        `json:"email,omitempty"`
	Category         string        `json:"category,omitempty"`
	IssueDescription string        `json:"issue_description,omitempty"`
	OpenCases        []Case        `json:"open_cases,omitempty"`
	SelectedCase     int           `json:"selected_case,omitempty"`
}

func NewExistingCustomerState() ExistingCustomerState {
	return ExistingCustomerState{Stage: StageAskEmail}
}

// OnboardingSlots is what the onboarding dialogue has learned about a prospect.
type OnboardingSlots struct {
	HardwareOwned *bool  `json:"hardware_owned,omitempty"`
	Brand         string `json:"brand,omitempty"`
	BusinessType  string `json:"business_type,omitempty"`
	DoorCount     *int   `json:"door_count,omitempty"`
	Name          string `json:"name,omitempty"`
	SalesLinkSent bool   `json:"sales_link_sent,omitempty"`
}

// Merge copies every known value from update without clearing existing ones.
func (s *OnboardingSlots) Merge(update OnboardingSlots) {
	if update.HardwareOwned != nil {
		v := *update.HardwareOwned
		s.HardwareOwned = &v
	}
	if update.Brand != "" {
		s.Brand = update.Brand
	}
	if update.BusinessType != "" {
		s.BusinessType = update.BusinessType
	}
	if update.DoorCount != nil && *update.DoorCount > 0 {
		v := *update.DoorCount
		s.DoorCount = &v
	}
	if update.Name != "" {
		s.Name = update.Name
	}
}

type OnboardingState struct {
	Slots OnboardingSlots `json:"slots"`
	Turns int             `json:"turns"`
}

// Session is the dialogue state of one conversation. Version counts the
// saves a store has accepted; a save carrying a stale Version is rejected.
type Session struct {
	ID          string                `json:"id"`
	Version     int64                 `json:"version"`
	ActiveFlow  Flow                  `json:"active_flow"`
	RouterStage RouterStage           `json:"router_stage"`
	Existing    ExistingCustomerState `json:"existing"`
	Onboarding  OnboardingState       `json:"onboarding"`
	History     *History              `json:"history"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		ActiveFlow:  FlowNone,
		RouterStage: RouterStageIntro,
		Existing:    NewExistingCustomerState(),
		History:     NewHistory(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ResetToIntro hands the session back to flow selection.
func (s *Session) ResetToIntro() {
	s.ActiveFlow = FlowNone
	s.RouterStage = RouterStageIntro
}

// StageLabel is the stage name that currently owns the session.
func (s *Session) StageLabel() string {
	switch s.ActiveFlow {
	case FlowExistingCustomer:
		return string(s.Existing.Stage)
	case FlowNewCustomer:
		return string(FlowNewCustomer)
	case FlowGeneralInfo:
		return string(FlowGeneralInfo)
	default:
		return string(s.RouterStage)
	}
}

type CompletionRequest struct {
	System  string
	History []ConversationTurn
	User    string
	JSON    bool
}
