// Package bridge implements the Tool Bridge: the host-exposed `tool(name,
// args)` function the guest calls, which creates a guest-side promise,
// spawns a host async task to run the Event Pipeline and the handler, and
// enqueues its outcome on a FIFO queue. Nothing but the Execution Engine's
// own polling goroutine ever drains that queue (via Pump), so the guest VM
// is touched from exactly one goroutine for the lifetime of an execution.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/relaybox/relaybox/internal/blob"
	"github.com/relaybox/relaybox/internal/events"
	"github.com/relaybox/relaybox/internal/logging"
	"github.com/relaybox/relaybox/internal/tool"
	"github.com/relaybox/relaybox/internal/vm"
)

// Hooks lets the Execution Engine observe tool-call outcomes (for metrics)
// without the Bridge depending on the metrics package directly.
type Hooks struct {
	OnToolCallComplete func(toolName, outcome string, duration time.Duration)
}

// resolution is one item on the serialisation queue: a completed host
// task's outcome, paired with the guest promise capability it must settle.
type resolution struct {
	value   any
	rejErr  string
	isErr   bool
	resolve func(any) error
	reject  func(any) error
}

// Bridge installs `tool` into one execution's guest VM. A Bridge is scoped
// to exactly one execution; the Execution Engine constructs a fresh one per
// execute.handler call and is the sole caller of Pump.
type Bridge struct {
	registry *tool.Registry
	blobs    *blob.Table
	pipeline events.Pipeline
	vm       *vm.VM
	log      *logging.Logger
	hooks    Hooks
	ctx      context.Context

	queue chan resolution
	done  chan struct{}
}

// New constructs a Bridge bound to one execution's dependencies. Call
// Install to wire it into the guest, Pump on every poll tick, and Close
// once the execution settles.
func New(ctx context.Context, v *vm.VM, registry *tool.Registry, blobs *blob.Table, pipeline events.Pipeline, log *logging.Logger, hooks Hooks) *Bridge {
	if log == nil {
		log = logging.NewNop()
	}
	return &Bridge{
		registry: registry,
		blobs:    blobs,
		pipeline: pipeline,
		vm:       v,
		log:      log,
		hooks:    hooks,
		ctx:      ctx,
		queue:    make(chan resolution, 64),
		done:     make(chan struct{}),
	}
}

// Install registers the `tool` host function into the guest global scope.
func (b *Bridge) Install() {
	b.vm.InstallFunc("tool", b.toolFunc)
}

// Close marks this execution as finished. Any runTask goroutine still
// trying to enqueue a resolution after the owning goroutine has stopped
// calling Pump unblocks via the done case in its select instead of leaking;
// whatever is left buffered in queue is simply abandoned along with the
// (disposed) VM.
func (b *Bridge) Close() {
	close(b.done)
}

func (b *Bridge) toolFunc(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()

	var args any
	argVal := call.Argument(1)
	if argVal == nil || goja.IsUndefined(argVal) || goja.IsNull(argVal) {
		args = map[string]any{}
	} else {
		// Round-trip through encoding/json so handlers see JSON shapes
		// (goja exports integral numbers as int64, not float64).
		args = argVal.Export()
		if raw, err := json.Marshal(args); err == nil {
			var normalised any
			if json.Unmarshal(raw, &normalised) == nil {
				args = normalised
			}
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	promise, resolve, reject := b.vm.Runtime.NewPromise()

	go b.runTask(name, args, resolve, reject)

	return b.vm.Runtime.ToValue(promise)
}

func (b *Bridge) runTask(name string, args any, resolve, reject func(any) error) {
	start := time.Now()
	value, rejErr, isErr := b.execute(name, args)
	outcome := "success"
	if isErr {
		outcome = "error"
	}
	if b.hooks.OnToolCallComplete != nil {
		b.hooks.OnToolCallComplete(name, outcome, time.Since(start))
	}

	select {
	case b.queue <- resolution{value: value, rejErr: rejErr, isErr: isErr, resolve: resolve, reject: reject}:
	case <-b.done:
	}
}

// execute runs the Event Pipeline and the tool handler for one call,
// returning either a value to resolve with or an error message to reject
// with.
func (b *Bridge) execute(name string, args any) (value any, rejErr string, isErr bool) {
	before := &events.BeforeToolCall{ToolName: name, Args: args}
	if err := b.pipeline.Before(b.ctx, before); err != nil {
		return nil, err.Error(), true
	}
	args = before.Args

	var result any
	var handlerErr error

	if before.HasReturn {
		result = before.ReturnValue
	} else {
		t := b.registry.Find(name)
		if t == nil {
			return nil, fmt.Sprintf("Tool not found: %s", name), true
		}
		result, handlerErr = t.Handler(b.ctx, args)
	}

	if handlerErr == nil {
		succ := &events.ToolCallSuccess{ToolName: name, Args: args, Result: result}
		mutated, err := b.pipeline.Success(b.ctx, succ)
		if err != nil {
			return nil, err.Error(), true
		}
		extracted := blob.Extract(mutated, b.blobs)
		return extracted, "", false
	}

	errEv := &events.ToolCallError{ToolName: name, Args: args, Error: handlerErr.Error()}
	recovered, ok, err := b.pipeline.Error(b.ctx, errEv)
	if err != nil {
		return nil, err.Error(), true
	}
	if ok {
		extracted := blob.Extract(recovered, b.blobs)
		return extracted, "", false
	}
	return nil, handlerErr.Error(), true
}

// Pump drains every resolution currently buffered on the queue, settling
// each one against the guest VM in arrival order, then returns without
// blocking (spec §4.4's serialisation queue, §5's single-threaded-access
// discipline). The caller — the Execution Engine's poll loop — is the only
// goroutine permitted to call Pump, and therefore the only one permitted to
// touch the guest VM after Install runs.
func (b *Bridge) Pump() {
	for {
		select {
		case r := <-b.queue:
			b.settle(r)
		default:
			return
		}
	}
}

func (b *Bridge) settle(r resolution) {
	if b.vm.MainFulfilled() || b.vm.Disposed() {
		return
	}

	if r.isErr {
		_ = r.reject(b.vm.Runtime.NewGoError(fmt.Errorf("%s", r.rejErr)))
		b.vm.PumpMicrotasks()
		return
	}

	guestVal := b.materialise(r.value)
	_ = r.resolve(guestVal)
	b.vm.PumpMicrotasks()
}

// materialise converts a Go JSON-shaped value into a guest value, falling
// back to a raw string representation if conversion fails (spec §4.4 step
// 7b).
func (b *Bridge) materialise(value any) (out any) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Warn("bridge: materialising tool result panicked, falling back to string")
			out = b.vm.Runtime.ToValue(fmt.Sprintf("%v", value))
		}
	}()
	return b.vm.Runtime.ToValue(value)
}
