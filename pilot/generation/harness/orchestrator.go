package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/suite-pilot/pilot"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/codegen"
	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/tools"
)

// Authenticator guarantees a valid bearer token before backend calls.
type Authenticator interface {
	EnsureToken(ctx context.Context) error
}

// ToolCatalog lists the tools available for one run.
type ToolCatalog interface {
	ListTools(ctx context.Context) []tools.ToolDefinition
}

// ToolExecutor runs one tool call. Failures are carried in the result.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// CodeSynthesizer turns an executed call into target code.
type CodeSynthesizer interface {
	Synthesize(ctx context.Context, call codegen.Call) string
}

// StepStatus is the lifecycle state of an ExecutionStep.
type StepStatus string

const (
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// ExecutionStep records one attempted tool call. It is final once its
// status leaves StepRunning.
type ExecutionStep struct {
	ID              string          `json:"id"`
	ToolCallID      string          `json:"tool_call_id"`
	ToolName        string          `json:"tool_name"`
	Action          string          `json:"action"`
	Args            json.RawMessage `json:"args,omitempty"`
	Locator         string          `json:"locator,omitempty"`
	Value           string          `json:"value,omitempty"`
	Status          StepStatus      `json:"status"`
	ResultExcerpt   string          `json:"result_excerpt"`
	SynthesizedCode string          `json:"synthesized_code"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Policy bounds one run.
type Policy struct {
	MaxToolCalls   int           // tool executions per run
	WindowSize     int           // history messages kept between backend calls
	MaxResultChars int           // tool result length fed back to the model
	ToolTimeout    time.Duration // per tool call, zero means none
	Model          string
	Temperature    *float32
	TopP           *float32
	MaxTokens      int
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxToolCalls:   internal.DefaultMaxToolCalls,
		WindowSize:     internal.DefaultWindowSize,
		MaxResultChars: internal.DefaultMaxResultChars,
		ToolTimeout:    60 * time.Second,
	}
}

// RunRequest is one agent turn.
type RunRequest struct {
	Message        string
	ToolsEnabled   bool
	MaxToolCalls   int    // zero uses the policy
	ConversationID string // enables transcript persistence
}

// RunResult is the outcome of a turn.
type RunResult struct {
	Text  string
	Steps []ExecutionStep
	Usage *ports.Usage
}

// Deps wires an Orchestrator. Provider and Auth are required; nil
// infrastructure ports fall back to no-ops.
type Deps struct {
	Provider    ports.Provider
	Auth        Authenticator
	Catalog     ToolCatalog
	Executor    ToolExecutor
	Synthesizer CodeSynthesizer
	Prompt      PromptSource
	Guardrails  *Guardrails
	Store       ports.ConversationStore
	Limiter     ports.RateLimiter
	Tracer      ports.Tracer
	Clock       clockwork.Clock
	Logger      zerolog.Logger
}

// Orchestrator runs the bounded ask / execute / feed back loop.
// It serves one logical session; Run is not reentrant.
type Orchestrator struct {
	deps    Deps
	builder *PromptBuilder
	parser  *OutputParser
	running atomic.Bool

	mu     sync.RWMutex
	policy Policy
}

// NewOrchestrator creates an orchestrator. A nil policy means DefaultPolicy.
func NewOrchestrator(deps Deps, policy *Policy) *Orchestrator {
	if deps.Store == nil {
		deps.Store = noOpStore{}
	}
	if deps.Limiter == nil {
		deps.Limiter = noOpRateLimiter{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noOpTracer{}
	}
	if deps.Prompt == nil {
		deps.Prompt = StaticPrompt("")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	deps.Logger = deps.Logger.With().Str("component", "orchestrator").Logger()
	if policy == nil {
		policy = DefaultPolicy()
	}

	o := &Orchestrator{
		deps:    deps,
		builder: NewPromptBuilder(),
		parser:  NewOutputParser(),
	}
	o.SetPolicy(*policy)
	return o
}

// SetPolicy replaces the policy for subsequent runs.
func (o *Orchestrator) SetPolicy(p Policy) {
	if p.MaxToolCalls < 0 {
		p.MaxToolCalls = 0
	}
	if p.WindowSize < 1 {
		p.WindowSize = internal.DefaultWindowSize
	}
	if p.MaxResultChars < 1 {
		p.MaxResultChars = internal.DefaultMaxResultChars
	}
	o.mu.Lock()
	o.policy = p
	o.mu.Unlock()
}

// Policy returns the current policy.
func (o *Orchestrator) Policy() Policy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.policy
}

// Run executes one turn. Tool failures never fail the turn; they are fed
// back to the model and recorded as error steps. Every attempted tool call
// yields exactly one step.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (result *RunResult, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	policy := o.Policy()
	maxCalls := req.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = policy.MaxToolCalls
	}

	ctx, finish := o.deps.Tracer.StartSpan(ctx, "agent_run", map[string]any{
		"conversation_id": req.ConversationID,
		"tools_enabled":   req.ToolsEnabled,
		"max_tool_calls":  maxCalls,
	})
	defer func() { finish(err) }()

	if err := o.deps.Auth.EnsureToken(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	base, err := o.deps.Prompt.SystemPrompt(ctx)
	if err != nil {
		return nil, err
	}

	var defs []tools.ToolDefinition
	if o.deps.Catalog != nil {
		defs = o.deps.Catalog.ListTools(ctx)
	}
	var specs []ports.FunctionSpec
	known := map[string]bool{}
	schemas := map[string]json.RawMessage{}
	if req.ToolsEnabled && o.deps.Executor != nil {
		specs = tools.AsFunctionSchema(defs)
		for _, spec := range specs {
			known[spec.Name] = true
			schemas[spec.Name] = spec.Parameters
		}
	}
	system := o.builder.System(base, defs, len(specs) > 0)

	o.save(ctx, req.ConversationID, ports.Turn{Role: ports.RoleUser, Content: req.Message})

	history := []ports.PromptMessage{{Role: ports.RoleUser, Content: req.Message}}
	result = &RunResult{}
	used := 0

	for round := 1; ; round++ {
		completion, err := o.complete(ctx, policy, system, history, specs, round)
		if err != nil {
			return nil, err
		}
		result.Text = completion.Text
		result.Usage = addUsage(result.Usage, completion.Usage)

		var calls []ports.ToolCall
		if len(specs) > 0 {
			calls = completion.ToolCalls
			if len(calls) == 0 {
				calls = o.parser.ParseToolCalls(completion.Text, known)
			}
		}
		if len(calls) == 0 {
			break
		}
		if remaining := maxCalls - used; len(calls) > remaining {
			o.deps.Logger.Warn().
				Int("requested", len(calls)).
				Int("remaining", remaining).
				Msg("Tool call ceiling reached, discarding extra calls")
			calls = calls[:remaining]
		}
		if len(calls) == 0 {
			break
		}

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		history = append(history, ports.PromptMessage{
			Role:      ports.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: calls,
		})

		// sequential: later calls may depend on earlier ones
		for _, call := range calls {
			step, text := o.runStep(ctx, req.ConversationID, call, schemas[call.Name], policy)
			result.Steps = append(result.Steps, step)
			history = append(history, ports.PromptMessage{
				Role:       ports.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    truncateRunes(text, policy.MaxResultChars),
			})
			used++
		}

		history = Window(history, policy.WindowSize)
	}

	o.save(ctx, req.ConversationID, ports.Turn{Role: ports.RoleAssistant, Content: result.Text})
	return result, nil
}

// complete performs one rate-limited, traced backend call.
func (o *Orchestrator) complete(ctx context.Context, policy Policy, system string, history []ports.PromptMessage, specs []ports.FunctionSpec, round int) (ports.Completion, error) {
	release, err := o.deps.Limiter.Acquire(ctx, "chat")
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%w: %w", ErrBackendRequestFailed, err)
	}
	defer release()

	opts := ports.Options{
		Model:        policy.Model,
		MaxNewTokens: policy.MaxTokens,
		Temperature:  policy.Temperature,
		TopP:         policy.TopP,
	}
	if len(specs) > 0 {
		opts.ToolChoice = "auto"
	}

	prompt := o.builder.Build(system, history, specs, map[string]string{"round": fmt.Sprint(round)})

	spanCtx, finish := o.deps.Tracer.StartSpan(ctx, "provider_call", map[string]any{
		"round":    round,
		"messages": len(history),
		"tools":    len(specs),
	})
	completion, err := o.deps.Provider.Complete(spanCtx, prompt, opts)
	finish(err)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%w: %w", ErrBackendRequestFailed, err)
	}
	return completion, nil
}

// runStep executes one call and returns its final step plus the result
// text for the model.
func (o *Orchestrator) runStep(ctx context.Context, conversationID string, call ports.ToolCall, schema json.RawMessage, policy Policy) (ExecutionStep, string) {
	locator, value := codegen.StepDetails(call.Name, call.Args)
	step := ExecutionStep{
		ID:         uuid.NewString(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Action:     codegen.ActionLabel(call.Name),
		Locator:    locator,
		Value:      value,
		Status:     StepRunning,
		StartedAt:  o.deps.Clock.Now(),
	}

	if json.Valid(call.Args) {
		step.Args = call.Args
	}

	ctx, finish := o.deps.Tracer.StartSpan(ctx, "tool_call", map[string]any{
		"tool":    call.Name,
		"step_id": step.ID,
	})

	var res tools.Result
	if o.deps.Guardrails != nil {
		if err := o.deps.Guardrails.ValidateToolCall(call, schema); err != nil {
			res = tools.Failed(call.Name, "rejected: "+err.Error())
		}
	}
	if res.OK() {
		toolCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.ToolTimeout > 0 {
			toolCtx, cancel = context.WithTimeout(ctx, policy.ToolTimeout)
		}
		res = o.deps.Executor.Execute(toolCtx, call.Name, call.Args)
		cancel()
	}
	finish(res.Err)

	text := res.Text()
	step.FinishedAt = o.deps.Clock.Now()
	step.Status = StepSuccess
	if !res.OK() {
		step.Status = StepError
	}
	step.ResultExcerpt = truncateRunes(o.sanitize(text), policy.MaxResultChars)

	if o.deps.Synthesizer != nil {
		step.SynthesizedCode = o.deps.Synthesizer.Synthesize(ctx, codegen.Call{
			Tool:   call.Name,
			Args:   call.Args,
			Result: res.Output,
			Failed: !res.OK(),
		})
	}

	if conversationID != "" {
		if payload, err := json.Marshal(step); err == nil {
			if err := o.deps.Store.AppendToolArtifact(ctx, conversationID, call.Name, payload); err != nil {
				o.deps.Logger.Warn().Err(err).Str("step_id", step.ID).Msg("Failed to persist step")
			}
		}
	}

	o.deps.Logger.Debug().
		Str("tool", call.Name).
		Str("step_id", step.ID).
		Str("status", string(step.Status)).
		Msg("Tool step finished")
	return step, text
}

func (o *Orchestrator) sanitize(s string) string {
	if o.deps.Guardrails == nil {
		return s
	}
	return o.deps.Guardrails.SanitizeOutput(s)
}

func (o *Orchestrator) save(ctx context.Context, conversationID string, turn ports.Turn) {
	if conversationID == "" {
		return
	}
	turn.CreatedAt = o.deps.Clock.Now()
	if err := o.deps.Store.SaveTurn(ctx, conversationID, turn); err != nil {
		o.deps.Tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
		o.deps.Logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to persist turn")
	}
}

func addUsage(total, delta *ports.Usage) *ports.Usage {
	if delta == nil {
		return total
	}
	if total == nil {
		total = &ports.Usage{}
	}
	total.PromptTokens += delta.PromptTokens
	total.CompletionTokens += delta.CompletionTokens
	total.TotalTokens += delta.TotalTokens
	return total
}
