package runner

import (
	"strings"

	"github.com/phrazzld/dispatch/internal/clip"
	"github.com/tidwall/gjson"
)

const noJSONOutput = "OpenClaw finished without JSON output."

// parseLoose finds a JSON document in raw agent output. It accepts the whole
// trimmed text when valid, otherwise the span from the first '{' to the last
// '}'. Scalars do not count as a document.
func parseLoose(raw string) (gjson.Result, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return gjson.Result{}, false
	}
	if gjson.Valid(trimmed) {
		doc := gjson.Parse(trimmed)
		return doc, doc.IsObject() || doc.IsArray()
	}

	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first < 0 || last <= first {
		return gjson.Result{}, false
	}
	candidate := trimmed[first : last+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	return gjson.Parse(candidate), true
}

// stringField returns the trimmed value at path when it is a JSON string.
func stringField(doc gjson.Result, path string) string {
	v := doc.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

// Digest condenses openclaw stdout into a result text: a header line with
// run id, status and summary followed by the payload texts. Output that holds
// no JSON document is returned as trimmed raw text.
func Digest(stdout string) string {
	trimmed := strings.TrimSpace(stdout)
	doc, ok := parseLoose(stdout)
	if !ok {
		if trimmed == "" {
			trimmed = noJSONOutput
		}
		return clip.Text(trimmed, MaxResultChars)
	}

	var texts []string
	if payloads := doc.Get("result.payloads"); payloads.IsArray() {
		for _, p := range payloads.Array() {
			if text := stringField(p, "text"); text != "" {
				texts = append(texts, text)
			}
		}
	}

	header := "OpenClaw run " + orNA(stringField(doc, "runId")) +
		" · status=" + orNA(stringField(doc, "status")) +
		" · summary=" + orNA(stringField(doc, "summary"))
	body := strings.Join(texts, "\n")
	if body == "" {
		body = trimmed
	}
	return clip.Text(header+"\n\n"+body, MaxResultChars)
}
