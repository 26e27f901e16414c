package memos

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Hit is one memory returned by a search.
type Hit struct {
	ID      string
	GroupID string
	Text    string
	// Score is the server's relativity score; nil when it was missing or
	// not numeric.
	Score *float64
}

func stringField(doc gjson.Result, path string) string {
	v := doc.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// parseScore accepts a JSON number or a numeric string.
func parseScore(v gjson.Result) *float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// collectHits reads data.text_mem[].memories[] from a search response,
// skipping memories without text.
func collectHits(doc gjson.Result) []Hit {
	groups := doc.Get("data.text_mem")
	if !groups.IsArray() {
		return nil
	}

	var hits []Hit
	for _, group := range groups.Array() {
		cube := stringField(group, "cube_id")
		memories := group.Get("memories")
		if !memories.IsArray() {
			continue
		}
		for _, m := range memories.Array() {
			text := stringField(m, "memory")
			if text == "" {
				continue
			}
			hits = append(hits, Hit{
				ID:      stringField(m, "id"),
				GroupID: cube,
				Text:    text,
				Score:   parseScore(m.Get("metadata.relativity")),
			})
		}
	}
	return hits
}

// dedupeHits keeps the first hit per id, or per text when the id is empty.
func dedupeHits(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		key := h.ID
		if key == "" {
			key = h.Text
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

// sortHits orders by score descending with unscored hits last, then by text.
func sortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score != nil && b.Score == nil:
			return -1
		case a.Score == nil && b.Score != nil:
			return 1
		case a.Score != nil && *a.Score != *b.Score:
			if *a.Score > *b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Text, b.Text)
	})
}

// ParseHits extracts, dedupes and ranks the hits of a raw search response.
func ParseHits(body []byte) []Hit {
	hits := dedupeHits(collectHits(gjson.ParseBytes(body)))
	sortHits(hits)
	return hits
}
