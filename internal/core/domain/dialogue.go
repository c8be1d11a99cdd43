package domain

const defaultOnboardingPolicy = `You are the RemoteLock Assistant onboarding a NEW customer.

Conversation flow:
1. Greet politely and briefly ask how you can help related to smart locks.
2. If the need is clear, ask whether they already own any smart lock hardware.
3. If they do, ask for the brand.
4. If they do not, ask for their business type (vacation rental, small office, etc.).
5. Ask how many doors they plan to manage.
6. If they manage 30 or more doors, recommend speaking to a sales rep.
7. If they agree to speak to a sales rep, give them the scheduling link.
8. Ask for their name naturally during the conversation if it is not already known.

Rules:
- Do not open with "What's your name?".
- Never re-ask a question that was already answered.
- If the customer agrees to meet a sales rep, give the link immediately without asking again.`

// DialogueScript holds the tunable vocabulary and policy of the dialogue flows.
type DialogueScript struct {
	Greeting           string   `yaml:"greeting"`
	Categories         []string `yaml:"categories"`
	Affirmatives       []string `yaml:"affirmatives"`
	ResetWords         []string `yaml:"reset_words"`
	OnboardingPolicy   string   `yaml:"onboarding_policy"`
	SalesDoorThreshold int      `yaml:"sales_door_threshold"`
	SalesLink          string   `yaml:"sales_link"`
}

func DefaultDialogueScript() DialogueScript {
	return DialogueScript{
		Greeting:           "Hi! How can I help you today?",
		Categories:         []string{"Billing", "Software", "Hardware", "Partner"},
		Affirmatives:       []string{"yes", "y", "sure", "okay"},
		ResetWords:         []string{"start over", "restart"},
		OnboardingPolicy:   defaultOnboardingPolicy,
		SalesDoorThreshold: 30,
		SalesLink:          "https://calendly.com/",
	}
}

// WithDefaults fills every empty field from DefaultDialogueScript.
func (d DialogueScript) WithDefaults() DialogueScript {
	def := DefaultDialogueScript()
	out := d
	if out.Greeting == "" {
		out.Greeting = def.Greeting
	}
	if len(out.Categories) == 0 {
		out.Categories = def.Categories
	}
	if len(out.Affirmatives) == 0 {
		out.Affirmatives = def.Affirmatives
	}
	if len(out.ResetWords) == 0 {
		out.ResetWords = def.ResetWords
	}
	if out.OnboardingPolicy == "" {
		out.OnboardingPolicy = def.OnboardingPolicy
	}
	if out.SalesDoorThreshold <= 0 {
		out.SalesDoorThreshold = def.SalesDoorThreshold
	}
	if out.SalesLink == "" {
		out.SalesLink = def.SalesLink
	}
	return out
}
