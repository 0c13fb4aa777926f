package chat

import (
	"fmt"
	"strings"

	"github.com/bull/lecture-rag/internal/llm"
	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/transcript"
)

// MaxHistory is the number of prior messages forwarded to the model.
const MaxHistory = 10

const genericTitle = "the course video library"

// BuildSystemPrompt grounds the model in the retrieved excerpts. Each excerpt
// is introduced by its bold time range, e.g. **[1:00 - 1:30]**.
func BuildSystemPrompt(title string, matches []transcript.Match) string {
	if title == "" {
		title = genericTitle
	}

	var sb strings.Builder
	sb.WriteString("You are a teaching assistant helping a student understand lecture videos.\n")
	fmt.Fprintf(&sb, "The student is asking about %s.\n\n", quoteTitle(title))

	if len(matches) == 0 {
		sb.WriteString("No relevant transcript excerpts were found for this question. ")
		sb.WriteString("Tell the student that the videos do not seem to cover it, ")
		sb.WriteString("and only answer from general knowledge if you are confident. ")
		sb.WriteString("Do not invent timestamps.\n")
		return sb.String()
	}

	sb.WriteString("Answer using these transcript excerpts:\n\n")
	for _, m := range matches {
		fmt.Fprintf(&sb, "**[%s]**\n%s\n\n", transcript.FormatRange(m.StartTime, m.EndTime), strings.TrimSpace(m.Text))
	}
	sb.WriteString("Whenever you use information from an excerpt, cite the moment in the video ")
	sb.WriteString("with a timestamp marker in the form [MM:SS], for example [1:15] or [12:05]. ")
	sb.WriteString("Only cite times that fall inside the excerpts above. ")
	sb.WriteString("If the excerpts do not answer the question, say so.\n")
	return sb.String()
}

func quoteTitle(title string) string {
	if title == genericTitle {
		return title
	}
	return fmt.Sprintf("the video %q", title)
}

// BuildMessages forwards the most recent history followed by the new message.
// The conversation must open with a user turn, so leading assistant turns are
// dropped, as are empty ones.
func BuildMessages(history []Message, message string) []llm.Message {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	out := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := string(store.RoleUser)
		if m.Role == string(store.RoleAssistant) {
			role = string(store.RoleAssistant)
		}
		if len(out) == 0 && role == string(store.RoleAssistant) {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	return append(out, llm.Message{Role: string(store.RoleUser), Content: message})
}
