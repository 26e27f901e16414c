package runner

import (
	"strings"

	"github.com/phrazzld/dispatch/internal/clip"
	"github.com/phrazzld/dispatch/internal/domain"
)

const (
	promptDetailsChars = 2000
	promptQueryChars   = 500
)

const promptIntro = "Incoming command from the dispatch queue. Carry it out as the agent and return a short, practical report."

var promptResponseFormat = strings.Join([]string{
	"Response format:",
	"1) What you did",
	"2) Result (concrete, no filler)",
	"3) What is needed from the user (if anything)",
}, "\n")

// BuildPrompt renders the instruction sent to an agent backend. Each
// optional section is clipped on its own; contextChars bounds the MemOS
// context.
func BuildPrompt(cmd domain.Command, contextChars int) string {
	chunks := []string{
		promptIntro,
		"Command ID: " + cmd.ID.String(),
		"Title: " + cmd.Title,
	}
	if cmd.Details != "" {
		chunks = append(chunks, "Details:\n"+clip.Text(cmd.Details, promptDetailsChars))
	}
	if cmd.MemosQuery != "" {
		chunks = append(chunks, "MemOS query:\n"+clip.Text(cmd.MemosQuery, promptQueryChars))
	}
	if cmd.MemosContext != "" {
		chunks = append(chunks, "MemOS context:\n"+clip.Text(cmd.MemosContext, contextChars))
	}
	chunks = append(chunks, promptResponseFormat)
	return strings.Join(chunks, "\n\n")
}
