package domain

import "maps"

// Reply metadata keys shared by controllers and adapters.
const (
	MetaFlow     = "flow"
	MetaStage    = "stage"
	MetaIntent   = "intent"
	MetaTicketID = "ticket_id"
	MetaSources  = "sources"
	MetaPassages = "passages"
	MetaFallback = "fallback"
	MetaError    = "error"
)

const (
	FallbackGeneration = "generation_failure"
	FallbackRetrieval  = "retrieval_unavailable"
	FallbackNoContext  = "no_context"
)

// Reply is the single result shape produced by every dialogue component.
type Reply struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewReply(text string) Reply {
	return Reply{Text: text}
}

func (r Reply) With(key, value string) Reply {
	if value == "" {
		return r
	}
	out := Reply{Text: r.Text, Metadata: make(map[string]string, len(r.Metadata)+1)}
	maps.Copy(out.Metadata, r.Metadata)
	out.Metadata[key] = value
	return out
}

func (r Reply) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// ChatResult is what a chat surface receives for one turn.
type ChatResult struct {
	SessionID string `json:"session_id"`
	Reply     Reply  `json:"reply"`
	Flow      Flow   `json:"flow"`
	Stage     string `json:"stage"`
}
