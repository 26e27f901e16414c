package memos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	searchPath = "/product/search"
	// maxQueryChars bounds both derived and explicit search queries.
	maxQueryChars   = 500
	maxResponseSize = 4 << 20
)

// Status reasons.
const (
	ReasonDisabled      = "memos auto-context is disabled"
	ReasonUnconfigured  = "memos base URL or user ID is not configured"
	ReasonOK            = "ok"
	errInvalidQuery     = "invalid MemOS query"
	errTimedOut         = "MemOS request timed out"
	errMalformedPayload = "MemOS returned malformed JSON"
)

// Status describes whether enrichment is active and with which settings.
type Status struct {
	Enabled bool     `json:"enabled"`
	Reason  string   `json:"reason"`
	BaseURL string   `json:"baseUrl"`
	UserID  string   `json:"userId"`
	Cubes   []string `json:"cubes"`
	TopK    int      `json:"topK"`
}

// Meta reports what enrichment did for one command.
type Meta struct {
	Enabled  bool   `json:"enabled"`
	Query    string `json:"query"`
	Used     bool   `json:"used"`
	HitCount int    `json:"hitCount"`
	Error    string `json:"error"`
}

// SearchResult is the outcome of a standalone search. Error is set instead
// of Context when the search failed.
type SearchResult struct {
	Context  string `json:"context"`
	HitCount int    `json:"hitCount"`
	Query    string `json:"query"`
	Error    string `json:"error"`
}

type searchRequest struct {
	Query              string   `json:"query"`
	UserID             string   `json:"user_id"`
	ReadableCubeIDs    []string `json:"readable_cube_ids,omitempty"`
	TopK               int      `json:"top_k"`
	Relativity         float64  `json:"relativity"`
	Dedup              string   `json:"dedup"`
	Mode               string   `json:"mode"`
	IncludePreference  bool     `json:"include_preference"`
	SearchToolMemory   bool     `json:"search_tool_memory"`
	IncludeSkillMemory bool     `json:"include_skill_memory"`
}

// Provider calls the MemOS search API.
type Provider struct {
	cfg     config.MemosConfig
	client  *http.Client
	enabled bool
	reason  string
	logger  *slog.Logger
}

// NewProvider builds a provider from cfg. A nil client uses
// http.DefaultClient; per-request timeouts come from cfg.Timeout.
func NewProvider(cfg config.MemosConfig, client *http.Client, logger *slog.Logger) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "memos")),
	}
	switch {
	case !cfg.AutoContext:
		p.reason = ReasonDisabled
	case strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.UserID) == "":
		p.reason = ReasonUnconfigured
	default:
		p.enabled = true
		p.reason = ReasonOK
	}
	return p
}

// Status reports the effective configuration.
func (p *Provider) Status() Status {
	cubes := p.cfg.ReadableCubes
	if cubes == nil {
		cubes = []string{}
	}
	return Status{
		Enabled: p.enabled,
		Reason:  p.reason,
		BaseURL: p.cfg.BaseURL,
		UserID:  p.cfg.UserID,
		Cubes:   cubes,
		TopK:    p.cfg.TopK,
	}
}

// Enrich fills in.MemosContext from a search when enrichment is enabled and
// the caller supplied no context. The query is in.MemosQuery, or title and
// details when that is blank. On any failure in is returned unchanged.
func (p *Provider) Enrich(ctx context.Context, in domain.CreateCommandInput) (domain.CreateCommandInput, Meta) {
	if !p.enabled {
		return in, Meta{Query: strings.TrimSpace(in.MemosQuery), Error: p.reason}
	}

	query := strings.TrimSpace(in.MemosQuery)
	if query == "" {
		query = truncateRunes(strings.TrimSpace(in.Title+"\n"+in.Details), maxQueryChars)
	}
	if strings.TrimSpace(in.MemosContext) != "" || query == "" {
		return in, Meta{Enabled: true, Query: query}
	}

	res := p.Search(ctx, query)
	meta := Meta{Enabled: true, Query: res.Query, HitCount: res.HitCount, Error: res.Error}
	if res.Context == "" {
		return in, meta
	}

	out := in
	if strings.TrimSpace(out.MemosQuery) == "" {
		out.MemosQuery = res.Query
	}
	out.MemosContext = res.Context
	meta.Used = true
	return out, meta
}

// Search runs one search and renders the hits as context text.
func (p *Provider) Search(ctx context.Context, rawQuery string) SearchResult {
	query := strings.TrimSpace(rawQuery)
	if query == "" || utf8.RuneCountInString(query) > maxQueryChars {
		return SearchResult{Error: errInvalidQuery}
	}
	if !p.enabled {
		return SearchResult{Query: query, Error: p.reason}
	}

	hits, err := p.search(ctx, query)
	if err != nil {
		p.logger.WarnContext(ctx, "memos search failed",
			slog.String("error", err.Error()),
			slog.Int("query_length", len(query)))
		return SearchResult{Query: query, Error: err.Error()}
	}

	p.logger.DebugContext(ctx, "memos search finished", slog.Int("hits", len(hits)))
	return SearchResult{
		Context:  FormatContext(query, hits),
		HitCount: len(hits),
		Query:    query,
	}
}

func (p *Provider) search(ctx context.Context, query string) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(searchRequest{
		Query:              query,
		UserID:             p.cfg.UserID,
		ReadableCubeIDs:    p.cfg.ReadableCubes,
		TopK:               p.cfg.TopK,
		Dedup:              "mmr",
		Mode:               "fast",
		IncludePreference:  true,
		SearchToolMemory:   true,
		IncludeSkillMemory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode MemOS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build MemOS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("MemOS request failed with status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, errors.New(errMalformedPayload)
	}
	return ParseHits(payload), nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New(errTimedOut)
	}
	return fmt.Errorf("MemOS request error: %w", err)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
