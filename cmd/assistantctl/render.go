package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Italic(true)
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	ticketStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Bold(true)
)

// renderReply formats an assistant reply with its flow position and, when
// present, the sources and ticket it refers to.
func renderReply(reply domain.Reply, verbose bool) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Assistant:"))
	b.WriteString(" ")
	b.WriteString(replyStyle.Render(reply.Text))

	if ticket := reply.Meta(domain.MetaTicketID); ticket != "" {
		b.WriteString("\n")
		b.WriteString(ticketStyle.Render("Ticket " + ticket))
	}
	if sources := reply.Meta(domain.MetaSources); sources != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Sources: " + sources))
	}
	if verbose {
		if flow := reply.Meta(domain.MetaFlow); flow != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(fmt.Sprintf("[%s/%s]", flow, reply.Meta(domain.MetaStage))))
		}
		if fallback := reply.Meta(domain.MetaFallback); fallback != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("fallback: " + fallback))
		}
	}
	return b.String()
}

func renderIngestReport(report domain.IngestReport) string {
	var b strings.Builder
	b.WriteString(ticketStyle.Render(fmt.Sprintf("Indexed %d chunks from %d files", report.Chunks, report.Files)))
	for _, skipped := range report.Skipped {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("skipped: " + skipped))
	}
	return b.String()
}

func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit":
		return true
	}
	return false
}
