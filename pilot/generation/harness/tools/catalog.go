// Package tools discovers the tools served by tool servers, exposes them
// as backend function declarations and routes model-requested calls back
// to the server (or in-process tool) that owns them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// LocalServerID is the ServerID of tools registered in-process.
const LocalServerID = "local"

const maxDiscoveryBytes = 4 << 20

// ToolDefinition is one entry of a catalog snapshot.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	ServerID    string          `json:"server"`
}

type discoveryResponse struct {
	Tools []ToolDefinition `json:"tools"`
}

type route struct {
	def   ToolDefinition
	local ports.Tool
}

// CatalogConfig lists the discovery endpoints queried by ListTools.
type CatalogConfig struct {
	DiscoveryURLs []string
	Concurrency   int
}

// Catalog merges remote tool servers and in-process tools into one routing
// snapshot, refreshed on every ListTools call.
type Catalog struct {
	cfg        CatalogConfig
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.RWMutex
	local    []ports.Tool
	snapshot map[string]route
}

// NewCatalog creates a catalog. A nil httpClient means http.DefaultClient.
func NewCatalog(cfg CatalogConfig, httpClient *http.Client, logger zerolog.Logger) *Catalog {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	return &Catalog{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "tool_catalog").Logger(),
		snapshot:   map[string]route{},
	}
}

// Register adds an in-process tool. Local tools are listed after remote
// ones and lose name clashes against them.
func (c *Catalog) Register(tool ports.Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.local {
		if existing.Name() == tool.Name() {
			return fmt.Errorf("tool %q already registered", tool.Name())
		}
	}
	c.local = append(c.local, tool)
	return nil
}

// ListTools fetches every discovery endpoint concurrently and merges the
// results in endpoint order; the first definition of a name wins. Failing
// endpoints are logged and skipped, so the worst case is an empty list.
// The merged list replaces the routing snapshot used by Executor.
func (c *Catalog) ListTools(ctx context.Context) []ToolDefinition {
	fetched := make([][]ToolDefinition, len(c.cfg.DiscoveryURLs))

	p := pool.New().WithMaxGoroutines(c.cfg.Concurrency)
	for i, url := range c.cfg.DiscoveryURLs {
		i, url := i, url
		p.Go(func() {
			defs, err := c.discover(ctx, url)
			if err != nil {
				c.logger.Warn().Err(err).Str("url", url).Msg("Skipping tool server")
				return
			}
			fetched[i] = defs
		})
	}
	p.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]route)
	var merged []ToolDefinition
	add := func(r route) {
		if r.def.Name == "" {
			return
		}
		if _, dup := snapshot[r.def.Name]; dup {
			c.logger.Debug().Str("tool", r.def.Name).Str("server", r.def.ServerID).Msg("Ignoring duplicate tool")
			return
		}
		snapshot[r.def.Name] = r
		merged = append(merged, r.def)
	}

	for _, defs := range fetched {
		for _, def := range defs {
			add(route{def: def})
		}
	}
	for _, tool := range c.local {
		add(route{
			def: ToolDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				InputSchema: tool.Schema(),
				ServerID:    LocalServerID,
			},
			local: tool,
		})
	}

	c.snapshot = snapshot
	c.logger.Debug().Int("tools", len(merged)).Msg("Tool catalog refreshed")
	return merged
}

// Lookup returns the snapshot definition for name.
func (c *Catalog) Lookup(name string) (ToolDefinition, bool) {
	r, ok := c.lookup(name)
	return r.def, ok
}

func (c *Catalog) lookup(name string) (route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.snapshot[name]
	return r, ok
}

func (c *Catalog) discover(ctx context.Context, url string) ([]ToolDefinition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolDiscoveryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolDiscoveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrToolDiscoveryFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolDiscoveryFailed, err)
	}

	var out discoveryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrToolDiscoveryFailed, err)
	}
	return out.Tools, nil
}

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// AsFunctionSchema maps definitions 1:1 to backend function declarations.
// Missing or non-object schemas become an empty object schema.
func AsFunctionSchema(defs []ToolDefinition) []ports.FunctionSpec {
	specs := make([]ports.FunctionSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, ports.FunctionSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  normalizeSchema(def.InputSchema),
		})
	}
	return specs
}

func normalizeSchema(schema json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(schema)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return emptyObjectSchema
	}
	return trimmed
}
