// Package generation exposes the authenticated agent runtime to callers:
// login, chat with tool execution, plain streaming chat and script output.
package generation

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/suite-pilot/pilot/auth"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/config"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/db"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/codegen"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/tools"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	Message      string
	ToolsEnabled bool
	MaxToolCalls int // zero uses agent.max_tool_calls
	// ConversationID groups persisted turns. Empty starts a new conversation.
	ConversationID string
}

// ChatResponse is the outcome of a turn.
type ChatResponse struct {
	ConversationID string
	Text           string
	Steps          []harness.ExecutionStep
	Usage          *ports.Usage
}

// Runtime owns one logical session: its token, tool catalog and agent
// loop. Chat is not reentrant.
type Runtime struct {
	auth         *auth.Authenticator
	provider     ports.Provider
	catalog      *tools.Catalog
	orchestrator *harness.Orchestrator
	prompt       *swappablePrompt
	db           *sql.DB
	logger       zerolog.Logger

	mu  sync.RWMutex
	cfg *config.Config
}

// NewRuntime wires every component from cfg. A nil clock means the real
// clock.
func NewRuntime(ctx context.Context, cfg *config.Config, clk clockwork.Clock, logger zerolog.Logger) (*Runtime, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	var database *sql.DB
	if cfg.Database.Enabled {
		var err error
		database, err = db.ConnectToDB(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open transcript store: %w", err)
		}
	}

	authClient := &http.Client{Timeout: cfg.Auth.HTTPTimeout}
	session := auth.NewSession(clk)
	device := auth.NewDeviceClient(auth.DeviceConfig{
		ClientID:          cfg.Auth.ClientID,
		Scope:             cfg.Auth.Scope,
		DeviceCodeURL:     cfg.Auth.DeviceCodeURL,
		TokenURL:          cfg.Auth.TokenURL,
		GrantType:         cfg.Auth.GrantType,
		SlowDownIncrement: cfg.Auth.SlowDownIncrement,
	}, authClient, clk, logger)
	exchanger := auth.NewExchanger(auth.ExchangeConfig{
		URL:          cfg.Auth.ExchangeURL,
		Method:       cfg.Auth.ExchangeMethod,
		HeaderScheme: cfg.Auth.HeaderScheme,
		DefaultTTL:   cfg.Auth.TokenTTL,
	}, authClient, clk, logger)
	authenticator := auth.NewAuthenticator(device, exchanger, session, clk, logger)

	provider := adapters.NewChatCompletionsProvider(adapters.ChatCompletionsConfig{
		URL:         cfg.Chat.URL,
		Model:       cfg.Chat.Model,
		Temperature: cfg.Chat.Temperature,
		TopP:        cfg.Chat.TopP,
		MaxTokens:   cfg.Chat.MaxTokens,
		Headers:     cfg.Chat.Headers,
	}, &http.Client{Timeout: cfg.Chat.Timeout}, session, logger)

	toolClient := &http.Client{Timeout: cfg.Tools.Timeout}
	catalog := tools.NewCatalog(tools.CatalogConfig{
		DiscoveryURLs: cfg.Tools.DiscoveryURLs,
		Concurrency:   cfg.Tools.Concurrency,
	}, toolClient, logger)
	if cfg.Tools.FixturesDir != "" {
		fixtures, err := tools.NewFixtureFilesTool(cfg.Tools.FixturesDir)
		if err != nil {
			closeDB(database, logger)
			return nil, err
		}
		if err := catalog.Register(fixtures); err != nil {
			closeDB(database, logger)
			return nil, err
		}
	}
	executor := tools.NewExecutor(catalog, cfg.Tools.ExecuteURL, toolClient, logger)

	factory := harness.NewFactory(cfg, database, clk, logger)
	guardrails, err := factory.CreateGuardrails()
	if err != nil {
		closeDB(database, logger)
		return nil, err
	}
	prompt := &swappablePrompt{src: factory.CreatePromptSource()}

	orchestrator := harness.NewOrchestrator(harness.Deps{
		Provider:    provider,
		Auth:        authenticator,
		Catalog:     catalog,
		Executor:    executor,
		Synthesizer: codegen.NewSynthesizer(factory.CreateCache(), factory.CacheTTL(), logger),
		Prompt:      prompt,
		Guardrails:  guardrails,
		Store:       factory.CreateStore(),
		Limiter:     factory.CreateRateLimiter(),
		Tracer:      factory.CreateTracer(),
		Clock:       clk,
		Logger:      logger,
	}, factory.CreatePolicy())

	return &Runtime{
		auth:         authenticator,
		provider:     provider,
		catalog:      catalog,
		orchestrator: orchestrator,
		prompt:       prompt,
		db:           database,
		logger:       logger.With().Str("component", "runtime").Logger(),
		cfg:          cfg,
	}, nil
}

// Authenticate runs the device flow and the service-token exchange. prompt
// receives the user code to display.
func (r *Runtime) Authenticate(ctx context.Context, prompt func(auth.DeviceCode)) error {
	r.auth.SetPrompt(prompt)
	return r.auth.Login(ctx)
}

// IsAuthenticated reports whether the session holds an unexpired token.
func (r *Runtime) IsAuthenticated() bool {
	return r.auth.Session().IsValid()
}

// SetToken installs a bearer token directly. ttl <= 0 means the default
// lifetime.
func (r *Runtime) SetToken(token string, ttl time.Duration) {
	r.auth.Session().Set(token, ttl)
}

// ClearAuth drops the session token and the remembered OAuth token.
func (r *Runtime) ClearAuth() {
	r.auth.Logout()
}

// Chat runs one turn through the agent loop.
func (r *Runtime) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	res, err := r.orchestrator.Run(ctx, harness.RunRequest{
		Message:        req.Message,
		ToolsEnabled:   req.ToolsEnabled,
		MaxToolCalls:   req.MaxToolCalls,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		ConversationID: req.ConversationID,
		Text:           res.Text,
		Steps:          res.Steps,
		Usage:          res.Usage,
	}, nil
}

// ChatStream streams a plain answer without tools. Both channels are closed
// when the stream ends; at most one error is delivered.
func (r *Runtime) ChatStream(ctx context.Context, message string) (<-chan string, <-chan error) {
	textCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(textCh)
		defer close(errCh)

		if err := r.auth.EnsureToken(ctx); err != nil {
			errCh <- fmt.Errorf("%w: %w", harness.ErrUnauthenticated, err)
			return
		}
		system, err := r.prompt.SystemPrompt(ctx)
		if err != nil {
			errCh <- err
			return
		}

		policy := r.orchestrator.Policy()
		in := harness.NewPromptBuilder().Build(system, []ports.PromptMessage{
			{Role: ports.RoleUser, Content: message},
		}, nil, nil)
		chunks, err := r.provider.Stream(ctx, in, ports.Options{
			Model:        policy.Model,
			MaxNewTokens: policy.MaxTokens,
			Temperature:  policy.Temperature,
			TopP:         policy.TopP,
		})
		if err != nil {
			errCh <- fmt.Errorf("%w: %w", harness.ErrBackendRequestFailed, err)
			return
		}

		for chunk := range chunks {
			if chunk.DeltaText != "" {
				select {
				case textCh <- chunk.DeltaText:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if chunk.Err != nil {
				errCh <- fmt.Errorf("%w: %w", harness.ErrBackendRequestFailed, chunk.Err)
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			errCh <- err
		}
	}()

	return textCh, errCh
}

// Tool returns the catalog entry for name as of the last listing.
func (r *Runtime) Tool(name string) (tools.ToolDefinition, bool) {
	return r.catalog.Lookup(name)
}

// Script renders the synthesized code of steps as one test function.
func (r *Runtime) Script(name string, steps []harness.ExecutionStep) string {
	statements := make([]string, 0, len(steps))
	for _, step := range steps {
		if code := strings.TrimSpace(step.SynthesizedCode); code != "" {
			statements = append(statements, strings.Split(code, "\n")...)
		}
	}
	return codegen.RenderScript(name, statements)
}

// ApplyConfig updates the agent limits and the system prompt source. Auth,
// chat and tool endpoints keep their startup values.
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()

	factory := harness.NewFactory(cfg, nil, nil, r.logger)
	r.orchestrator.SetPolicy(*factory.CreatePolicy())
	r.prompt.set(factory.CreatePromptSource())
	r.logger.Info().
		Int("max_tool_calls", cfg.Agent.MaxToolCalls).
		Int("window_size", cfg.Agent.WindowSize).
		Msg("Agent settings updated")
}

// Config returns the configuration currently in effect.
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Watch hot-reloads the config file into the runtime.
func (r *Runtime) Watch() error {
	return config.Watch(r.ApplyConfig, r.logger)
}

// Close releases the transcript database.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func closeDB(database *sql.DB, logger zerolog.Logger) {
	if database == nil {
		return
	}
	if err := database.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close transcript store")
	}
}

// swappablePrompt lets a config reload replace the prompt source between
// runs.
type swappablePrompt struct {
	mu  sync.RWMutex
	src harness.PromptSource
}

func (p *swappablePrompt) SystemPrompt(ctx context.Context) (string, error) {
	p.mu.RLock()
	src := p.src
	p.mu.RUnlock()
	return src.SystemPrompt(ctx)
}

func (p *swappablePrompt) set(src harness.PromptSource) {
	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
}
