package harness

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/suite-pilot/pilot"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/config"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // optional, enables the conversation store
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, clk clockwork.Clock, logger zerolog.Logger) *Factory {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Factory{
		cfg:    cfg,
		db:     db,
		clock:  clk,
		logger: logger,
	}
}

// CreateCache creates a cache adapter from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity, f.clock)
}

// CacheTTL is the lifetime of cached entries. Zero means no expiry.
func (f *Factory) CacheTTL() time.Duration {
	return time.Duration(f.cfg.Harness.CacheTTLSeconds) * time.Second
}

// CreateRateLimiter creates a rate limiter adapter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate, f.clock)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// CreateStore creates a conversation store adapter from config.
func (f *Factory) CreateStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}
	return adapters.NewLibSQLConversationStore(f.db, f.clock)
}

// CreateGuardrails creates guardrails from config. It returns nil when
// guardrails are disabled.
func (f *Factory) CreateGuardrails() (*Guardrails, error) {
	if !f.cfg.Harness.EnableGuardrails {
		return nil, nil
	}
	return NewGuardrails(f.cfg.Harness.AllowedTools, f.cfg.Harness.RedactPatterns)
}

// CreatePromptSource picks the file prompt when a path is configured.
func (f *Factory) CreatePromptSource() PromptSource {
	if f.cfg.Agent.SystemPromptPath != "" {
		return FilePrompt{Path: f.cfg.Agent.SystemPromptPath, Fallback: f.cfg.Agent.SystemPrompt}
	}
	return StaticPrompt(f.cfg.Agent.SystemPrompt)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	return PolicyFromConfig(f.cfg, f.logger)
}

// PolicyFromConfig maps agent and chat settings onto a Policy, clamping
// out-of-range values.
func PolicyFromConfig(cfg *config.Config, logger zerolog.Logger) *Policy {
	policy := DefaultPolicy()
	policy.MaxToolCalls = cfg.Agent.MaxToolCalls
	policy.WindowSize = cfg.Agent.WindowSize
	policy.MaxResultChars = cfg.Agent.MaxResultChars
	policy.Model = cfg.Chat.Model
	policy.Temperature = cfg.Chat.Temperature
	policy.TopP = cfg.Chat.TopP
	policy.MaxTokens = cfg.Chat.MaxTokens
	if cfg.Tools.Timeout > 0 {
		policy.ToolTimeout = cfg.Tools.Timeout
	}

	if policy.MaxToolCalls < 0 {
		logger.Warn().Int("max_tool_calls", policy.MaxToolCalls).Msg("MaxToolCalls clamped to minimum of 0")
		policy.MaxToolCalls = 0
	}
	if policy.WindowSize < 1 {
		logger.Warn().Int("window_size", policy.WindowSize).Msg("WindowSize reset to default")
		policy.WindowSize = internal.DefaultWindowSize
	}
	if policy.MaxResultChars < 1 {
		logger.Warn().Int("max_result_chars", policy.MaxResultChars).Msg("MaxResultChars reset to default")
		policy.MaxResultChars = internal.DefaultMaxResultChars
	}
	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements ConversationStore interface with no-op behavior.
type noOpStore struct{}

func (s noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s noOpStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

func (s noOpStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = noOpRateLimiter{}
	_ ports.Tracer            = noOpTracer{}
	_ ports.ConversationStore = noOpStore{}
)
