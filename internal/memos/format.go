package memos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/phrazzld/dispatch/internal/clip"
)

const (
	maxContextLines  = 8
	hitTextChars     = 420
	headerQueryChars = 240
	emptyQueryChars  = 160
	maxContextChars  = 7900
)

// FormatContext renders hits as the text stored in a command's MemOS
// context.
func FormatContext(query string, hits []Hit) string {
	if len(hits) == 0 {
		return `MemOS: no relevant memories found for query "` + clip.Text(query, emptyQueryChars) + `".`
	}

	lines := make([]string, 0, min(len(hits), maxContextLines)+1)
	lines = append(lines, `MemOS auto-context · query: "`+clip.Text(query, headerQueryChars)+`"`)
	for i, h := range hits {
		if i == maxContextLines {
			break
		}
		line := strconv.Itoa(i+1) + ". " + clip.Text(h.Text, hitTextChars)
		if h.GroupID != "" {
			line += " cube=" + h.GroupID
		}
		if h.Score != nil {
			line += fmt.Sprintf(" rel=%.2f", *h.Score)
		}
		lines = append(lines, line)
	}
	return clip.Text(strings.Join(lines, "\n"), maxContextChars)
}
