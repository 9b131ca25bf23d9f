package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StubTool implements ports.Tool for testing.
type StubTool struct {
	name   string
	schema string
	result any
	err    error
	seen   json.RawMessage
}

func (t *StubTool) Name() string        { return t.name }
func (t *StubTool) Description() string { return "stub " + t.name }
func (t *StubTool) Schema() []byte      { return []byte(t.schema) }
func (t *StubTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	t.seen = args
	return t.result, t.err
}

func toolServer(t *testing.T, status int, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func names(defs []ToolDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func TestListToolsMergesInEndpointOrder(t *testing.T) {
	first := toolServer(t, http.StatusOK, `{"tools":[
		{"name":"browser_navigate","description":"Navigate","server":"playwright","inputSchema":{"type":"object","properties":{"url":{"type":"string"}}}},
		{"name":"browser_click","description":"Click","server":"playwright"}
	]}`)
	second := toolServer(t, http.StatusOK, `{"tools":[
		{"name":"browser_click","description":"Other click","server":"other"},
		{"name":"api_request","description":"HTTP","server":"api"}
	]}`)

	catalog := NewCatalog(CatalogConfig{DiscoveryURLs: []string{first.URL, second.URL}}, nil, zerolog.Nop())
	require.NoError(t, catalog.Register(&StubTool{name: "fixture_files"}))

	defs := catalog.ListTools(context.Background())

	assert.Equal(t, []string{"browser_navigate", "browser_click", "api_request", "fixture_files"}, names(defs))

	click, ok := catalog.Lookup("browser_click")
	require.True(t, ok)
	assert.Equal(t, "playwright", click.ServerID)

	local, ok := catalog.Lookup("fixture_files")
	require.True(t, ok)
	assert.Equal(t, LocalServerID, local.ServerID)
}

func TestListToolsSkipsFailingEndpoints(t *testing.T) {
	broken := toolServer(t, http.StatusInternalServerError, `boom`)
	garbage := toolServer(t, http.StatusOK, `not json`)
	healthy := toolServer(t, http.StatusOK, `{"tools":[{"name":"browser_snapshot","server":"playwright"}]}`)

	catalog := NewCatalog(CatalogConfig{DiscoveryURLs: []string{broken.URL, garbage.URL, healthy.URL}}, nil, zerolog.Nop())

	defs := catalog.ListTools(context.Background())
	assert.Equal(t, []string{"browser_snapshot"}, names(defs))
}

func TestListToolsEmptyWhenEverythingFails(t *testing.T) {
	broken := toolServer(t, http.StatusBadGateway, ``)
	catalog := NewCatalog(CatalogConfig{DiscoveryURLs: []string{broken.URL, "http://127.0.0.1:1/unreachable"}}, nil, zerolog.Nop())

	defs := catalog.ListTools(context.Background())
	assert.Empty(t, defs)

	_, ok := catalog.Lookup("anything")
	assert.False(t, ok)
}

func TestListToolsReplacesSnapshot(t *testing.T) {
	var body atomic.Value
	body.Store(`{"tools":[{"name":"browser_click","server":"playwright"}]}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(server.Close)

	catalog := NewCatalog(CatalogConfig{DiscoveryURLs: []string{server.URL}}, nil, zerolog.Nop())
	catalog.ListTools(context.Background())
	_, ok := catalog.Lookup("browser_click")
	require.True(t, ok)

	body.Store(`{"tools":[{"name":"browser_hover","server":"playwright"}]}`)
	catalog.ListTools(context.Background())

	_, ok = catalog.Lookup("browser_click")
	assert.False(t, ok)
	_, ok = catalog.Lookup("browser_hover")
	assert.True(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	catalog := NewCatalog(CatalogConfig{}, nil, zerolog.Nop())
	require.NoError(t, catalog.Register(&StubTool{name: "fixture_files"}))
	assert.Error(t, catalog.Register(&StubTool{name: "fixture_files"}))
}

func TestAsFunctionSchema(t *testing.T) {
	defs := []ToolDefinition{
		{Name: "browser_navigate", Description: "Navigate", InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)},
		{Name: "browser_close", Description: "Close"},
		{Name: "weird", InputSchema: json.RawMessage(`["not","an","object"]`)},
	}

	specs := AsFunctionSchema(defs)

	require.Len(t, specs, 3)
	assert.Equal(t, "browser_navigate", specs[0].Name)
	assert.Equal(t, "Navigate", specs[0].Description)
	assert.JSONEq(t, `{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`, string(specs[0].Parameters))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(specs[1].Parameters))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(specs[2].Parameters))

	assert.Empty(t, AsFunctionSchema(nil))
}
