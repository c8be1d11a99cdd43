// Package mcpadapter exposes the support assistant as Model Context Protocol tools.
package mcpadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const (
	toolKnowledgeSearch = "knowledge_search"
	toolKnowledgeAnswer = "knowledge_answer"
	toolSupportChat     = "support_chat"
)

type Server struct {
	chat      ports.ChatService
	knowledge ports.KnowledgeService
	topK      int
}

func New(chat ports.ChatService, knowledge ports.KnowledgeService, topK int) *Server {
	if topK <= 0 {
		topK = 4
	}
	return &Server{chat: chat, knowledge: knowledge, topK: topK}
}

// MCPServer builds the protocol server with every tool registered.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"support-assistant",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Search the smart-lock knowledge base or hold a support conversation on behalf of a customer."),
	)

	srv.AddTool(mcp.NewTool(toolKnowledgeSearch,
		mcp.WithDescription("Hybrid dense and keyword search over the support knowledge base."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text.")),
		mcp.WithNumber("k", mcp.Description("Maximum passages to return."), mcp.Min(1), mcp.Max(20)),
	), s.knowledgeSearch)

	srv.AddTool(mcp.NewTool(toolKnowledgeAnswer,
		mcp.WithDescription("Answer a question from the knowledge base only."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("question", mcp.Required(), mcp.Description("Customer question.")),
	), s.knowledgeAnswer)

	srv.AddTool(mcp.NewTool(toolSupportChat,
		mcp.WithDescription("Send one customer message to the support dialogue. Omit session_id to start a new conversation."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Customer message.")),
		mcp.WithString("session_id", mcp.Description("Conversation id returned by an earlier call.")),
	), s.supportChat)

	return srv
}

func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) knowledgeSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	k := req.GetInt("k", s.topK)

	passages, err := s.knowledge.Retrieve(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("knowledge search failed", err), nil
	}
	return mcp.NewToolResultStructured(map[string]any{"passages": passages}, formatPassages(passages)), nil
}

func (s *Server) knowledgeAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	reply := s.knowledge.Answer(ctx, question)
	return mcp.NewToolResultStructured(reply, reply.Text), nil
}

func (s *Server) supportChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		started, err := s.chat.StartSession(ctx)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("start session failed", err), nil
		}
		sessionID = started.SessionID
	}

	result, err := s.chat.Send(ctx, sessionID, message)
	if err != nil {
		if domain.IsKind(err, domain.ErrSessionNotFound) {
			return mcp.NewToolResultError("unknown or expired session_id; omit it to start a new conversation"), nil
		}
		return mcp.NewToolResultErrorFromErr("chat turn failed", err), nil
	}
	return mcp.NewToolResultStructured(result, result.Reply.Text), nil
}

func formatPassages(passages []domain.RetrievedPassage) string {
	if len(passages) == 0 {
		return "No matching passages."
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (%s, score %.4f)\n%s", i+1, p.Chunk.SourceDocument, p.Source, p.Score, p.Chunk.Text)
	}
	return b.String()
}
