package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressState_Eviction(t *testing.T) {
	t.Run("evicts oldest first under budget pressure", func(t *testing.T) {
		p := &progressState{}
		budget := 60

		p.appendLine("line-one is here", budget)
		p.appendLine("line-two is here", budget)
		p.appendLine("line-three is here", budget)
		p.appendLine("line-four is here", budget)

		rendered := p.render(budget)
		assert.LessOrEqual(t, len(rendered), budget)
		assert.NotContains(t, rendered, "line-one")
		assert.Contains(t, rendered, "line-four")
	})

	t.Run("trimmed count is monotonic and exact", func(t *testing.T) {
		p := &progressState{}
		budget := 40

		appended := 10
		for i := 0; i < appended; i++ {
			p.appendLine("0123456789", budget)
		}

		assert.Equal(t, appended, len(p.lines)+p.trimmedCount)
		assert.Contains(t, p.render(budget), "trimmed")
	})

	t.Run("never evicts the last line", func(t *testing.T) {
		p := &progressState{}
		budget := 20

		p.appendLine(strings.Repeat("w", 100), budget)
		assert.Len(t, p.lines, 1)
		assert.LessOrEqual(t, len(p.render(budget)), budget)
	})

	t.Run("no header without evictions", func(t *testing.T) {
		p := &progressState{}
		p.appendLine("hello", 3800)
		assert.Equal(t, "hello", p.render(3800))
	})
}

func TestProgressState_FullText(t *testing.T) {
	p := &progressState{}
	p.appendFullText("first block")
	p.appendFullText("   ")
	p.appendFullText("second block")

	assert.Equal(t, "first block\n\n---\n\nsecond block", p.fullText())
}
