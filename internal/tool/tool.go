// Package tool defines the Tool and Registry types that back the sandbox's
// tool catalog: a named, JSON-schema-described, host-async handler plus an
// ordered, name-unique collection of them.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Handler is a host-side asynchronous function from a JSON-shaped argument
// value to a JSON-shaped result value. It may return an error, whose message
// string is what the guest eventually sees (after the Event Pipeline has had
// a chance to recover it).
type Handler func(ctx context.Context, args any) (any, error)

// Tool is a named handler with a JSON-schema description of its inputs and,
// optionally, its outputs.
type Tool struct {
	Name         string
	Title        string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Handler      Handler
}

// reservedNames are names that can never be registered by a caller: the
// sandbox's own exposed tool plus the four built-ins every Registry owns.
var reservedNames = map[string]bool{
	"execute":       true,
	"describe_tool": true,
	"list_tools":    true,
	"sleep":         true,
	"get_blob":      true,
}

// IsReserved reports whether name is one of the names a user tool may never
// shadow.
func IsReserved(name string) bool {
	return reservedNames[name]
}

// DuplicateNameError reports an attempt to register a name already present
// in a Registry, whether by collision with another user tool or with a
// built-in.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("Duplicate tool name: %s", e.Name)
}

// NotFoundError reports an attempt to look up or remove a name not present
// in a Registry.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Tool not found: %s", e.Name)
}

// Registry is an ordered, name-unique collection of Tools. It always carries
// the four built-ins (describe_tool, list_tools, sleep, get_blob) appended
// after any user tools supplied at construction. A Registry is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Tool

	blobs            BlobSource
	sleepGranularity time.Duration

	executeDescription string
}

// BlobSource is the minimal view of a per-execution blob table the
// get_blob built-in needs. The Execution Engine supplies the live table for
// the execution currently running; outside an execution it is empty.
type BlobSource interface {
	Lookup(id string) (data, mimeType string, ok bool)
}

// nopBlobSource is used before any execution has installed a real one.
type nopBlobSource struct{}

func (nopBlobSource) Lookup(string) (string, string, bool) { return "", "", false }

// NewRegistry constructs a Registry from an initial list of tools, failing
// with a *DuplicateNameError if any two share a name or if any reuses a
// built-in's reserved name.
func NewRegistry(tools []Tool) (*Registry, error) {
	r := &Registry{
		order:            nil,
		tools:            make(map[string]*Tool),
		blobs:            nopBlobSource{},
		sleepGranularity: 10 * time.Millisecond,
	}
	for i := range tools {
		t := tools[i]
		if err := r.addLocked(&t); err != nil {
			return nil, err
		}
	}
	r.installBuiltins()
	r.refreshDescription()
	return r, nil
}

// SetBlobSource installs the blob table the get_blob built-in reads from.
// The Execution Engine calls this once per execution.
func (r *Registry) SetBlobSource(src BlobSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src == nil {
		src = nopBlobSource{}
	}
	r.blobs = src
}

// SetSleepGranularity sets the wakeup-check granularity the sleep built-in
// chops its wait into (config.EngineConfig.SleepToolGranularity). Sandbox
// construction calls this once from the host's configured tunables.
func (r *Registry) SetSleepGranularity(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d <= 0 {
		return
	}
	r.sleepGranularity = d
}

// Add registers a new tool, failing with *DuplicateNameError on collision.
func (r *Registry) Add(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.addLocked(&t); err != nil {
		return err
	}
	r.refreshDescription()
	return nil
}

// Remove deletes a tool by name, failing with *NotFoundError if absent.
// Built-ins cannot be removed: a reserved name also fails with
// *NotFoundError.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return &NotFoundError{Name: name}
	}
	if reservedNames[name] {
		return &NotFoundError{Name: name}
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.refreshDescription()
	return nil
}

// Find returns the tool registered under name, or nil if absent.
func (r *Registry) Find(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// Snapshot returns a stable, ordered copy of every registered tool in
// registration order: tools supplied at construction, then the built-ins,
// then any tools added later with Add.
func (r *Registry) Snapshot() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, *r.tools[n])
	}
	return out
}

// ExecuteDescription returns the human-readable description of the
// sandbox's execute tool, embedding the sorted, comma-separated current
// tool-name list. It is recomputed on every registry mutation.
func (r *Registry) ExecuteDescription() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executeDescription
}

func (r *Registry) addLocked(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if reservedNames[t.Name] {
		return &DuplicateNameError{Name: t.Name}
	}
	if _, exists := r.tools[t.Name]; exists {
		return &DuplicateNameError{Name: t.Name}
	}
	cp := *t
	r.tools[t.Name] = &cp
	r.order = append(r.order, t.Name)
	return nil
}

func (r *Registry) installBuiltins() {
	r.tools["describe_tool"] = &Tool{
		Name:        "describe_tool",
		Description: "Describe a registered tool by name, returning its schema.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
			"required":   []any{"name"},
		},
		Handler: r.describeToolHandler,
	}
	r.tools["list_tools"] = &Tool{
		Name:        "list_tools",
		Description: "List every registered tool's name and description.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     r.listToolsHandler,
	}
	r.tools["sleep"] = &Tool{
		Name:        "sleep",
		Description: "Suspend for approximately the given number of milliseconds.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"ms": map[string]any{"type": "number"}},
			"required":   []any{"ms"},
		},
		Handler: r.sleepHandler,
	}
	r.tools["get_blob"] = &Tool{
		Name:        "get_blob",
		Description: "Retrieve a blob lifted out of a tool result earlier in this execution.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []any{"id"},
		},
		Handler: r.getBlobHandler,
	}
	r.order = append(r.order, "describe_tool", "list_tools", "sleep", "get_blob")
}

func (r *Registry) describeToolHandler(_ context.Context, args any) (any, error) {
	name, _ := stringField(args, "name")
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Tool not found: %s", name)}, nil
	}
	return map[string]any{
		"name":         t.Name,
		"description":  t.Description,
		"inputSchema":  t.InputSchema,
		"outputSchema": t.OutputSchema,
	}, nil
}

func (r *Registry) listToolsHandler(_ context.Context, _ any) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.order))
	for _, n := range r.order {
		t := r.tools[n]
		out = append(out, map[string]any{"name": t.Name, "description": t.Description})
	}
	return out, nil
}

// sleepHandler waits out ms milliseconds in sleepGranularity-sized steps, so
// a cancelled ctx is noticed within one granularity window instead of only
// at the end of the full wait.
func (r *Registry) sleepHandler(ctx context.Context, args any) (any, error) {
	ms, _ := numberField(args, "ms")
	remaining := time.Duration(ms * float64(time.Millisecond))
	if remaining < 0 {
		remaining = 0
	}

	r.mu.RLock()
	granularity := r.sleepGranularity
	r.mu.RUnlock()
	if granularity <= 0 {
		granularity = remaining
	}

	for remaining > 0 {
		step := granularity
		if step > remaining {
			step = remaining
		}
		select {
		case <-time.After(step):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		remaining -= step
	}
	return map[string]any{"slept": ms}, nil
}

func (r *Registry) getBlobHandler(_ context.Context, args any) (any, error) {
	id, _ := stringField(args, "id")
	r.mu.RLock()
	src := r.blobs
	r.mu.RUnlock()
	data, mimeType, ok := src.Lookup(id)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Blob not found: %s", id)}, nil
	}
	return map[string]any{"id": id, "data": data, "mimeType": mimeType}, nil
}

func (r *Registry) refreshDescription() {
	names := make([]string, 0, len(r.order))
	for _, n := range r.order {
		if n == "describe_tool" || n == "list_tools" || n == "sleep" || n == "get_blob" {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Execute a JavaScript program in a sandboxed runtime. ")
	b.WriteString("The program may call `await tool(name, args)` to invoke any of the following tools: ")
	if len(names) == 0 {
		b.WriteString("(none registered besides the built-ins)")
	} else {
		b.WriteString(strings.Join(names, ", "))
	}
	b.WriteString(". Built-in tools describe_tool, list_tools, sleep, and get_blob are always available. ")
	b.WriteString("The program has no filesystem, network, clock, or module-loader access; ")
	b.WriteString("all external interaction goes through tool().")
	r.executeDescription = b.String()
}

func stringField(args any, key string) (string, bool) {
	m, ok := args.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

func numberField(args any, key string) (float64, bool) {
	m, ok := args.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
