package chat

import (
	"strings"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/inference/engine"
)

const (
	Persona = "You are a nice person to chat to."

	groundingRules = "Answer the user's question using only the context below. " +
		"If the context does not contain the answer, say that you don't know. " +
		"Do not invent facts or citations."
)

// composeMessages builds the system turn (persona, rules and retrieved
// context) and the user turn (rendered history followed by the query).
func composeMessages(persona string, sources []domain.Source, history []domain.ChatMessage, query string) []engine.Message {
	if strings.TrimSpace(persona) == "" {
		persona = Persona
	}

	var sys strings.Builder
	sys.WriteString(persona)
	sys.WriteString("\n\n")
	sys.WriteString(groundingRules)
	sys.WriteString("\n\nContext:\n")
	sys.WriteString(renderContext(sources))

	var user strings.Builder
	if len(history) > 0 {
		user.WriteString("Conversation so far:\n")
		user.WriteString(renderHistory(history))
		user.WriteString("\n\n")
	}
	user.WriteString(query)

	return []engine.Message{
		{Role: "system", Content: strings.TrimSpace(sys.String())},
		{Role: "user", Content: user.String()},
	}
}

func renderContext(sources []domain.Source) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderHistory(history []domain.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
