package memos

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchResponse = `{"code":200,"data":{"text_mem":[{"cube_id":"openclaw-memory-live","memories":[
	{"id":"m1","memory":"Payroll runs on the 5th","metadata":{"relativity":0.8}}]}]}}`

func testConfig(baseURL string) config.MemosConfig {
	return config.MemosConfig{
		AutoContext:   true,
		BaseURL:       baseURL,
		UserID:        "openclaw-main",
		ReadableCubes: []string{"openclaw-memory-live"},
		TopK:          6,
		Timeout:       2 * time.Second,
	}
}

func newTestProvider(cfg config.MemosConfig) *Provider {
	return NewProvider(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// recorder keeps the decoded bodies of requests seen by a test server.
type recorder struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (r *recorder) add(req map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *recorder) at(i int) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

// memosServer answers searches with status and body.
func memosServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/product/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec.add(req)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNewProviderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.MemosConfig)
		enabled bool
		reason  string
	}{
		{"enabled", func(*config.MemosConfig) {}, true, ReasonOK},
		{"auto context off", func(c *config.MemosConfig) { c.AutoContext = false }, false, ReasonDisabled},
		{"missing base url", func(c *config.MemosConfig) { c.BaseURL = "" }, false, ReasonUnconfigured},
		{"missing user", func(c *config.MemosConfig) { c.UserID = " " }, false, ReasonUnconfigured},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig("http://127.0.0.1:8000")
			tc.mutate(&cfg)

			status := newTestProvider(cfg).Status()

			assert.Equal(t, tc.enabled, status.Enabled)
			assert.Equal(t, tc.reason, status.Reason)
			assert.Equal(t, 6, status.TopK)
		})
	}
}

func TestSearchRequestBody(t *testing.T) {
	t.Parallel()

	srv, rec := memosServer(t, http.StatusOK, searchResponse)
	p := newTestProvider(testConfig(srv.URL))

	res := p.Search(context.Background(), "  payroll schedule ")

	require.Empty(t, res.Error)
	require.Equal(t, 1, rec.count())
	req := rec.at(0)
	assert.Equal(t, "payroll schedule", req["query"])
	assert.Equal(t, "openclaw-main", req["user_id"])
	assert.Equal(t, []any{"openclaw-memory-live"}, req["readable_cube_ids"])
	assert.EqualValues(t, 6, req["top_k"])
	assert.EqualValues(t, 0, req["relativity"])
	assert.Equal(t, "mmr", req["dedup"])
	assert.Equal(t, "fast", req["mode"])
	assert.Equal(t, true, req["include_preference"])
	assert.Equal(t, true, req["search_tool_memory"])
	assert.Equal(t, true, req["include_skill_memory"])

	assert.Equal(t, 1, res.HitCount)
	assert.Equal(t, "payroll schedule", res.Query)
	assert.Equal(t, "MemOS auto-context · query: \"payroll schedule\"\n1. Payroll runs on the 5th cube=openclaw-memory-live rel=0.80", res.Context)
}

func TestSearchOmitsEmptyCubes(t *testing.T) {
	t.Parallel()

	srv, rec := memosServer(t, http.StatusOK, `{"data":{"text_mem":[]}}`)
	cfg := testConfig(srv.URL)
	cfg.ReadableCubes = nil

	res := newTestProvider(cfg).Search(context.Background(), "payroll")

	require.Empty(t, res.Error)
	assert.NotContains(t, rec.at(0), "readable_cube_ids")
	assert.Equal(t, `MemOS: no relevant memories found for query "payroll".`, res.Context)
	assert.Zero(t, res.HitCount)
}

func TestSearchFailures(t *testing.T) {
	t.Parallel()

	t.Run("invalid query", func(t *testing.T) {
		t.Parallel()

		srv, rec := memosServer(t, http.StatusOK, searchResponse)
		p := newTestProvider(testConfig(srv.URL))

		for _, q := range []string{"   ", strings.Repeat("q", 501)} {
			res := p.Search(context.Background(), q)
			assert.Equal(t, "invalid MemOS query", res.Error)
			assert.Empty(t, res.Context)
		}
		assert.Zero(t, rec.count())
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()

		srv, _ := memosServer(t, http.StatusBadGateway, `{"detail":"down"}`)

		res := newTestProvider(testConfig(srv.URL)).Search(context.Background(), "payroll")

		assert.Equal(t, "MemOS request failed with status 502", res.Error)
		assert.Empty(t, res.Context)
		assert.Equal(t, "payroll", res.Query)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		srv, _ := memosServer(t, http.StatusOK, `{"data": [`)

		res := newTestProvider(testConfig(srv.URL)).Search(context.Background(), "payroll")

		assert.Equal(t, "MemOS returned malformed JSON", res.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })
		cfg := testConfig(srv.URL)
		cfg.Timeout = 50 * time.Millisecond

		res := newTestProvider(cfg).Search(context.Background(), "payroll")

		assert.Equal(t, "MemOS request timed out", res.Error)
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := newTestProvider(testConfig(url)).Search(context.Background(), "payroll")

		assert.True(t, strings.HasPrefix(res.Error, "MemOS request error:"), res.Error)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig("http://127.0.0.1:1")
		cfg.AutoContext = false

		res := newTestProvider(cfg).Search(context.Background(), "payroll")

		assert.Equal(t, ReasonDisabled, res.Error)
		assert.Equal(t, "payroll", res.Query)
	})
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	t.Run("fills context from title and details", func(t *testing.T) {
		t.Parallel()

		srv, rec := memosServer(t, http.StatusOK, searchResponse)
		p := newTestProvider(testConfig(srv.URL))
		in := domain.CreateCommandInput{Title: "Recalculate payroll", Details: "for March"}

		out, meta := p.Enrich(context.Background(), in)

		assert.Equal(t, "Recalculate payroll\nfor March", rec.at(0)["query"])
		assert.Equal(t, "Recalculate payroll\nfor March", out.MemosQuery)
		assert.Contains(t, out.MemosContext, "Payroll runs on the 5th")
		assert.Equal(t, Meta{Enabled: true, Query: "Recalculate payroll\nfor March", Used: true, HitCount: 1}, meta)
		assert.Equal(t, in.Title, out.Title)
	})

	t.Run("explicit query is kept", func(t *testing.T) {
		t.Parallel()

		srv, rec := memosServer(t, http.StatusOK, searchResponse)
		p := newTestProvider(testConfig(srv.URL))

		out, meta := p.Enrich(context.Background(), domain.CreateCommandInput{Title: "Recalculate payroll", MemosQuery: " salary rules "})

		assert.Equal(t, "salary rules", rec.at(0)["query"])
		assert.Equal(t, " salary rules ", out.MemosQuery)
		assert.True(t, meta.Used)
	})

	t.Run("derived query is capped", func(t *testing.T) {
		t.Parallel()

		srv, rec := memosServer(t, http.StatusOK, searchResponse)
		p := newTestProvider(testConfig(srv.URL))

		_, meta := p.Enrich(context.Background(), domain.CreateCommandInput{Title: "Audit", Details: strings.Repeat("d", 900)})

		assert.Len(t, []rune(rec.at(0)["query"].(string)), 500)
		assert.True(t, meta.Used)
	})

	t.Run("existing context skips the search", func(t *testing.T) {
		t.Parallel()

		srv, rec := memosServer(t, http.StatusOK, searchResponse)
		p := newTestProvider(testConfig(srv.URL))
		in := domain.CreateCommandInput{Title: "Recalculate payroll", MemosContext: "already known"}

		out, meta := p.Enrich(context.Background(), in)

		assert.Equal(t, in, out)
		assert.False(t, meta.Used)
		assert.True(t, meta.Enabled)
		assert.Zero(t, rec.count())
	})

	t.Run("disabled leaves input unchanged", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig("http://127.0.0.1:1")
		cfg.AutoContext = false
		in := domain.CreateCommandInput{Title: "Recalculate payroll", MemosQuery: "payroll"}

		out, meta := newTestProvider(cfg).Enrich(context.Background(), in)

		assert.Equal(t, in, out)
		assert.Equal(t, Meta{Enabled: false, Query: "payroll", Used: false, HitCount: 0, Error: ReasonDisabled}, meta)
	})

	t.Run("failure leaves input unchanged", func(t *testing.T) {
		t.Parallel()

		srv, _ := memosServer(t, http.StatusInternalServerError, "")
		in := domain.CreateCommandInput{Title: "Recalculate payroll"}

		out, meta := newTestProvider(testConfig(srv.URL)).Enrich(context.Background(), in)

		assert.Equal(t, in, out)
		assert.False(t, meta.Used)
		assert.Zero(t, meta.HitCount)
		assert.Equal(t, "MemOS request failed with status 500", meta.Error)
	})
}
