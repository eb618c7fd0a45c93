package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/carescope/internal/types"
)

const instructions = `Please provide a clear, actionable response that:
1. Directly answers the user's query
2. Highlights key findings and insights
3. Identifies any gaps or concerns in healthcare infrastructure
4. Provides specific recommendations if applicable
5. Cites the data behind every claim as "Row <id>", using only rows listed in the context or citations

Write in a professional yet accessible tone suitable for NGO planners.`

// Prompt is the instruction text sent with every synthesis payload.
func Prompt(query string) string {
	return fmt.Sprintf("User Query: %s\n\n%s", strings.TrimSpace(query), instructions)
}

// boundPayload caps each context text at an equal share of max characters
// when their total exceeds it. Entries are never dropped.
func boundPayload(p types.Payload, max int) types.Payload {
	if max <= 0 {
		return p
	}
	total := 0
	for _, e := range p.Context {
		total += utf8.RuneCountInString(e.Text)
	}
	if total <= max {
		return p
	}

	ctx := make([]types.ContextEntry, len(p.Context))
	copy(ctx, p.Context)
	share := max / len(ctx)
	for i := range ctx {
		ctx[i].Text = truncate(ctx[i].Text, share)
	}
	p.Context = ctx
	return p
}

// truncate cuts s to at most n characters, the last being an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return ""
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
