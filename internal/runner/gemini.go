package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/phrazzld/dispatch/internal/clip"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
	"google.golang.org/genai"
)

const geminiMaxTries = 3

// Errors reported by the Gemini runner.
var (
	ErrEmptyResponse  = errors.New("gemini returned no text")
	ErrContentBlocked = errors.New("gemini blocked the response by safety filters")
)

// contentGenerator is the part of the genai client the runner calls.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Gemini executes commands by sending the agent prompt to a Gemini model.
type Gemini struct {
	models       contentGenerator
	model        string
	contextChars int
	logger       *slog.Logger
	retryDelay   time.Duration
}

// GeminiSettings is the effective model configuration reported in the
// worker status.
type GeminiSettings struct {
	Model string `json:"model"`
}

// NewGemini creates a Gemini API client from cfg.
func NewGemini(ctx context.Context, cfg config.LLMConfig, contextChars int, logger *slog.Logger) (*Gemini, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("gemini model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGemini(client.Models, cfg.ModelName, contextChars, logger), nil
}

func newGemini(models contentGenerator, model string, contextChars int, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		models:       models,
		model:        model,
		contextChars: contextChars,
		logger:       logger.With(slog.String("component", "gemini_runner")),
		retryDelay:   time.Second,
	}
}

func (g *Gemini) Name() string { return config.RunnerGemini }

func (g *Gemini) Settings() any { return GeminiSettings{Model: g.model} }

// Execute sends the prompt, retrying transport failures with exponential
// backoff. Empty or blocked responses are not retried.
func (g *Gemini) Execute(ctx context.Context, cmd domain.Command) Result {
	prompt := BuildPrompt(cmd, g.contextChars)
	log := g.logger.With(slog.String("command_id", cmd.ID.String()))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retryDelay

	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			log.WarnContext(ctx, "gemini call failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return "", err
		}
		text, err := responseText(resp)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		return text, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(geminiMaxTries))
	if err != nil {
		log.WarnContext(ctx, "gemini execution failed", slog.Int("attempts", attempt), slog.Any("error", err))
		return failed(clip.Text("Gemini execution failed: "+err.Error(), MaxResultChars))
	}

	log.InfoContext(ctx, "gemini execution finished", slog.Int("attempts", attempt))
	return Result{OK: true, Text: clip.Text(text, MaxResultChars)}
}

// responseText joins the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", ErrEmptyResponse
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.Join(texts, "\n"), nil
}
