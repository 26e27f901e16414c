package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels replays canned responses and records prompts.
type fakeModels struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	prompts   []string
	models    []string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	call := len(f.prompts)
	f.models = append(f.models, model)
	var prompt strings.Builder
	for _, c := range contents {
		for _, p := range c.Parts {
			prompt.WriteString(p.Text)
		}
	}
	f.prompts = append(f.prompts, prompt.String())

	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	if err != nil {
		return nil, err
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	return nil, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func newTestGemini(models contentGenerator) *Gemini {
	g := newGemini(models, "gemini-2.0-flash", 3200, discardLogger())
	g.retryDelay = time.Millisecond
	return g
}

func TestGeminiExecuteSuccess(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("Payroll ", "recalculated.")}}
	g := newTestGemini(models)

	res := g.Execute(context.Background(), testCommand())

	assert.True(t, res.OK)
	assert.Equal(t, "Payroll\nrecalculated.", res.Text)
	require.Len(t, models.prompts, 1)
	assert.Equal(t, "gemini-2.0-flash", models.models[0])
	assert.Equal(t, BuildPrompt(testCommand(), 3200), models.prompts[0])
}

func TestGeminiExecuteRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse("done")},
	}
	g := newTestGemini(models)

	res := g.Execute(context.Background(), testCommand())

	assert.True(t, res.OK, res.Text)
	assert.Equal(t, "done", res.Text)
	assert.Len(t, models.prompts, 2)
}

func TestGeminiExecuteGivesUpAfterMaxTries(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("service unavailable")
	models := &fakeModels{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	g := newTestGemini(models)

	res := g.Execute(context.Background(), testCommand())

	assert.False(t, res.OK)
	assert.Equal(t, "Gemini execution failed: service unavailable", res.Text)
	assert.Len(t, models.prompts, geminiMaxTries)
}

func TestGeminiExecuteDoesNotRetryBadResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"nil response", nil, ErrEmptyResponse},
		{"no candidates", &genai.GenerateContentResponse{}, ErrEmptyResponse},
		{"blank text", textResponse("   "), ErrEmptyResponse},
		{
			"safety block",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			ErrContentBlocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			models := &fakeModels{responses: []*genai.GenerateContentResponse{tc.resp}}
			g := newTestGemini(models)

			res := g.Execute(context.Background(), testCommand())

			assert.False(t, res.OK)
			assert.Equal(t, "Gemini execution failed: "+tc.want.Error(), res.Text)
			assert.Len(t, models.prompts, 1)
		})
	}
}

func TestGeminiMetadata(t *testing.T) {
	t.Parallel()

	g := newTestGemini(&fakeModels{})

	assert.Equal(t, config.RunnerGemini, g.Name())
	assert.Equal(t, GeminiSettings{Model: "gemini-2.0-flash"}, g.Settings())
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), config.LLMConfig{ModelName: "gemini-2.0-flash"}, 3200, discardLogger())

	assert.Error(t, err)
}
