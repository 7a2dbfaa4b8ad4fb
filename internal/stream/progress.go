package stream

import (
	"fmt"
	"strings"
)

// progressState is the mutable record for one logical run. It is created by
// ResetProgress, mutated only from the serializer goroutine, and discarded
// wholesale on the next reset.
type progressState struct {
	messageID    string
	lines        []string
	trimmedCount int
	prompt       string

	// fullTextMessages retains every raw text body for the completion
	// attachment, independent of classifier suppression.
	fullTextMessages []string

	// createFailed marks a run whose create call never yielded a message
	// id; lines keep accumulating without an edit target until the
	// finalization flush.
	createFailed bool

	finished bool
}

// appendLine adds one rendered line and evicts from the oldest end until the
// rendering fits the budget. At least one line always survives eviction.
func (p *progressState) appendLine(line string, budget int) {
	p.lines = append(p.lines, line)
	for len(p.lines) > 1 && len(p.render(budget)) > budget {
		p.lines = p.lines[1:]
		p.trimmedCount++
	}
}

// render produces the progress description: an eviction header when lines
// have been trimmed, then the surviving lines in arrival order. A single
// over-budget line is hard-cut so the result never exceeds the budget.
func (p *progressState) render(budget int) string {
	var b strings.Builder
	if p.trimmedCount > 0 {
		fmt.Fprintf(&b, "*... %d earlier lines trimmed ...*\n", p.trimmedCount)
	}
	b.WriteString(strings.Join(p.lines, "\n"))

	out := b.String()
	if len(out) > budget && len(p.lines) == 1 {
		out = truncate(out, budget-3)
	}
	return out
}

// appendFullText records a raw text body for the completion attachment.
func (p *progressState) appendFullText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	p.fullTextMessages = append(p.fullTextMessages, text)
}

// fullText joins the retained raw text blocks with a visible separator.
func (p *progressState) fullText() string {
	return strings.Join(p.fullTextMessages, "\n\n---\n\n")
}
