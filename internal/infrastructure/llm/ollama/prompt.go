package ollama

import "github.com/kirillkom/support-assistant/internal/core/domain"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatMessages(req domain.CompletionRequest) []chatMessage {
	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == domain.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Text})
	}
	return append(messages, chatMessage{Role: "user", Content: req.User})
}
