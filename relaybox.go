// Package relaybox provides a secure, embeddable code-execution runtime: a
// host program exposes named tools to untrusted guest JavaScript run
// inside a goja sandbox, bridged through the single tool(name, args)
// function. See SPEC_FULL.md for the full design.
package relaybox

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaybox/relaybox/internal/config"
	"github.com/relaybox/relaybox/internal/engine"
	"github.com/relaybox/relaybox/internal/events"
	"github.com/relaybox/relaybox/internal/logging"
	"github.com/relaybox/relaybox/internal/store"
	"github.com/relaybox/relaybox/internal/tool"
)

// Re-exported so callers depend only on the root package for the common
// types, matching the teacher's pattern of surfacing its public API from
// root-level packages (see reglet-sdk's host/hostfuncs split, adopted here
// as "facade at root, internals under internal/").
type (
	// Tool is a named host-async handler callable from the guest.
	Tool = tool.Tool
	// Handler is a tool's host-side asynchronous implementation.
	Handler = tool.Handler
	// ExecuteResult is the record of one execution.
	ExecuteResult = engine.ExecuteResult
	// BlobResult is one binary payload lifted out of a tool result.
	BlobResult = engine.BlobResult
	// BeforeToolCall, ToolCallSuccess, and ToolCallError are the event
	// records handed to the optional host callbacks below.
	BeforeToolCall  = events.BeforeToolCall
	ToolCallSuccess = events.ToolCallSuccess
	ToolCallError   = events.ToolCallError
)

// SandboxOptions configures a new Sandbox. Tools is the initial user-tool
// catalog; the three callbacks are optional (nil means that pipeline stage
// is a no-op passthrough, per spec §4.3).
type SandboxOptions struct {
	Tools []Tool

	OnBeforeToolCall  func(ctx context.Context, ev *BeforeToolCall) error
	OnToolCallSuccess func(ctx context.Context, ev *ToolCallSuccess) error
	OnToolCallError   func(ctx context.Context, ev *ToolCallError) error

	Config  config.EngineConfig
	Logger  *logging.Logger
	Metrics engine.MetricsSink
}

// Sandbox is the long-lived host object bundling the tool Registry, the
// persistent Store, and the execute tool descriptor (spec §4.6).
type Sandbox struct {
	mu sync.RWMutex

	registry   *tool.Registry
	store      *store.Store
	prevResult any

	pipeline events.Pipeline
	engine   *engine.Engine
	log      *logging.Logger
}

// NewSandbox constructs a Sandbox from opts. It fails with the same
// *tool.DuplicateNameError that Registry construction would, per spec §8
// "createSandbox with two tools sharing a name fails".
func NewSandbox(opts SandboxOptions) (*Sandbox, error) {
	registry, err := tool.NewRegistry(opts.Tools)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewDefault()
	}

	cfg := opts.Config
	if cfg == (config.EngineConfig{}) {
		cfg = config.Default()
	}
	registry.SetSleepGranularity(cfg.SleepToolGranularity)

	return &Sandbox{
		registry: registry,
		store:    store.New(),
		pipeline: events.Pipeline{
			OnBeforeToolCall:  opts.OnBeforeToolCall,
			OnToolCallSuccess: opts.OnToolCallSuccess,
			OnToolCallError:   opts.OnToolCallError,
		},
		engine: engine.New(cfg, log, opts.Metrics),
		log:    log,
	}, nil
}

// AddTool registers a new tool, refreshing the execute-tool description.
// Fails with *tool.DuplicateNameError on collision.
func (s *Sandbox) AddTool(t Tool) error {
	return s.registry.Add(t)
}

// RemoveTool deregisters a tool by name. Fails with *tool.NotFoundError if
// absent.
func (s *Sandbox) RemoveTool(name string) error {
	return s.registry.Remove(name)
}

// Store returns a snapshot of the store as of the last completed
// execution.
func (s *Sandbox) Store() map[string]any {
	return s.store.Snapshot()
}

// SetStore replaces the store wholesale with data. Any `_prev` key is
// dropped: it is a guest-visible-only reserved slot.
func (s *Sandbox) SetStore(data map[string]any) {
	s.store.Set(data)
}

// ExecuteDescription returns the current human-readable description of
// the execute tool, embedding the sorted, comma-separated tool-name list.
func (s *Sandbox) ExecuteDescription() string {
	return s.registry.ExecuteDescription()
}

// executeInputSchema and executeOutputSchema are the fixed schemas spec §6
// mandates for the execute tool.
var executeInputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"code": map[string]any{"type": "string"},
	},
	"required": []any{"code"},
}

var executeOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"success": map[string]any{"type": "boolean"},
		"result":  map[string]any{},
		"error":   map[string]any{"type": "string"},
		"blobs":   map[string]any{"type": "array"},
	},
	"required": []any{"success", "blobs"},
}

// ExecuteTool returns a Tool wrapping this Sandbox's execute.handler, for
// hosts that want to slot it into their own tool-catalog machinery
// alongside tools discovered from elsewhere (e.g. internal/mcpadapter).
func (s *Sandbox) ExecuteTool() Tool {
	return Tool{
		Name:         "execute",
		Description:  s.ExecuteDescription(),
		InputSchema:  executeInputSchema,
		OutputSchema: executeOutputSchema,
		Handler: func(ctx context.Context, args any) (any, error) {
			m, ok := args.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("execute: args must be an object with a code field")
			}
			code, _ := m["code"].(string)
			return s.Execute(ctx, code)
		},
	}
}

// Execute runs one execution of code (spec §4.5's execute.handler), the
// primary entry point hosts use directly.
func (s *Sandbox) Execute(ctx context.Context, code string) (*ExecuteResult, error) {
	s.mu.Lock()
	prev := s.prevResult
	s.mu.Unlock()

	result, err := s.engine.Execute(ctx, code, s.registry, s.store, prev, s.pipeline)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if result.Success {
		s.prevResult = result.Result
	}
	s.mu.Unlock()

	return result, nil
}
