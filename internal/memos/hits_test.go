package memos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(f float64) *float64 { return &f }

func TestParseHits(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"code": 200,
		"data": {
			"text_mem": [
				{
					"cube_id": "openclaw-memory-live",
					"memories": [
						{"id": "m1", "memory": " Payroll runs on the 5th ", "metadata": {"relativity": 0.42}},
						{"id": "m2", "memory": "Overtime is paid at 1.5x", "metadata": {"relativity": "0.91"}},
						{"id": "m3", "memory": "   "},
						{"id": "m4", "memory": "Bonus rules", "metadata": {"relativity": "high"}}
					]
				},
				{
					"cube_id": "openclaw-memory-operational",
					"memories": [
						{"id": "m1", "memory": "duplicate id", "metadata": {"relativity": 0.99}},
						{"memory": "Accountant is Ivanova", "metadata": {"relativity": 0.42}},
						{"memory": "Accountant is Ivanova"}
					]
				},
				{"cube_id": "broken", "memories": "not-a-list"}
			]
		}
	}`)

	hits := ParseHits(body)

	require.Len(t, hits, 4)
	assert.Equal(t, Hit{ID: "m2", GroupID: "openclaw-memory-live", Text: "Overtime is paid at 1.5x", Score: score(0.91)}, hits[0])
	assert.Equal(t, "Accountant is Ivanova", hits[1].Text, "equal scores order by text")
	assert.Equal(t, "openclaw-memory-operational", hits[1].GroupID)
	assert.Equal(t, "Payroll runs on the 5th", hits[2].Text)
	assert.Equal(t, "m4", hits[3].ID, "unscored hits sort last")
	assert.Nil(t, hits[3].Score)
}

func TestParseHitsUnexpectedShapes(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"data":null}`, `{"data":{"text_mem":{}}}`, `[]`} {
		assert.Empty(t, ParseHits([]byte(body)), body)
	}
}

func TestFormatContext(t *testing.T) {
	t.Parallel()

	t.Run("no hits", func(t *testing.T) {
		t.Parallel()

		got := FormatContext("payroll", nil)

		assert.Equal(t, `MemOS: no relevant memories found for query "payroll".`, got)
	})

	t.Run("hits", func(t *testing.T) {
		t.Parallel()

		got := FormatContext("payroll", []Hit{
			{ID: "a", GroupID: "cube-a", Text: "first", Score: score(0.456)},
			{ID: "b", Text: "second"},
		})

		assert.Equal(t, "MemOS auto-context · query: \"payroll\"\n1. first cube=cube-a rel=0.46\n2. second", got)
	})

	t.Run("at most eight lines", func(t *testing.T) {
		t.Parallel()

		hits := make([]Hit, 12)
		for i := range hits {
			hits[i] = Hit{Text: strings.Repeat("x", i+1)}
		}

		lines := strings.Split(FormatContext("q", hits), "\n")

		assert.Len(t, lines, 9)
		assert.True(t, strings.HasPrefix(lines[8], "8. "))
	})

	t.Run("long texts are clipped", func(t *testing.T) {
		t.Parallel()

		got := FormatContext(strings.Repeat("q", 300), []Hit{{Text: strings.Repeat("m", 500)}})

		assert.Contains(t, got, `query: "`+strings.Repeat("q", 239)+`…"`)
		assert.Contains(t, got, "1. "+strings.Repeat("m", 419)+"…")
		assert.NotContains(t, got, "rel=")
	})
}
