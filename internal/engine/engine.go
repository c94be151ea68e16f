// Package engine implements the Execution Engine: the per-execution guest
// VM lifecycle, main-script evaluation, pending-jobs pump, polling loop,
// interrupt handling, and teardown described in spec.md §4.5.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/relaybox/relaybox/internal/blob"
	"github.com/relaybox/relaybox/internal/bridge"
	"github.com/relaybox/relaybox/internal/config"
	"github.com/relaybox/relaybox/internal/events"
	"github.com/relaybox/relaybox/internal/logging"
	"github.com/relaybox/relaybox/internal/store"
	"github.com/relaybox/relaybox/internal/tool"
	"github.com/relaybox/relaybox/internal/vm"
)

// MetricsSink lets the Engine report outcomes without depending on the
// metrics package's Prometheus types directly.
type MetricsSink interface {
	ObserveExecution(outcome string, duration time.Duration)
	ObserveToolCall(toolName, outcome string, duration time.Duration)
	ObserveBlobsExtracted(n int)
}

type nopSink struct{}

func (nopSink) ObserveExecution(string, time.Duration)        {}
func (nopSink) ObserveToolCall(string, string, time.Duration) {}
func (nopSink) ObserveBlobsExtracted(int)                     {}

// Engine runs executions against a Registry and Store using the tunables
// in config.EngineConfig.
type Engine struct {
	cfg     config.EngineConfig
	log     *logging.Logger
	metrics MetricsSink
}

// New constructs an Engine. log and metrics may be nil, in which case a
// no-op logger/sink is used.
func New(cfg config.EngineConfig, log *logging.Logger, metrics MetricsSink) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	if metrics == nil {
		metrics = nopSink{}
	}
	return &Engine{cfg: cfg, log: log, metrics: metrics}
}

// Execute runs one execution of code against registry and st, observing
// prevResult as the `_prev` value the guest's store will carry. It never
// returns a Go error for guest-side failure — every failure mode in spec
// §7 is folded into the returned ExecuteResult, per SPEC_FULL.md §10's
// "Error handling" ambient-stack note. A non-nil error return is reserved
// for host-level misuse (nil registry/store).
func (e *Engine) Execute(ctx context.Context, code string, registry *tool.Registry, st *store.Store, prevResult any, pipeline events.Pipeline) (*ExecuteResult, error) {
	if registry == nil || st == nil {
		return nil, fmt.Errorf("engine: Execute requires a non-nil registry and store")
	}

	start := time.Now()
	v := vm.New()
	blobs := blob.NewTable()
	registry.SetBlobSource(blobs)
	defer registry.SetBlobSource(nil)

	defer e.teardown(v)

	if err := st.Hydrate(v.Runtime, prevResult); err != nil {
		e.log.Warn("engine: store hydration failed", zap.Error(err))
		msg := fmt.Sprintf("store hydration failed: %s", err.Error())
		result := failure(msg, nil, fmt.Errorf("%w: %s", ErrHostInternal, msg))
		e.metrics.ObserveExecution("error", time.Since(start))
		return result, nil
	}

	br := bridge.New(ctx, v, registry, blobs, pipeline, e.log, bridge.Hooks{
		OnToolCallComplete: func(toolName, outcome string, duration time.Duration) {
			e.metrics.ObserveToolCall(toolName, outcome, duration)
		},
	})
	br.Install()
	defer br.Close()

	wrapped := "(async function() {\n" + code + "\n})();"
	val, err := v.Runtime.RunString(wrapped)
	if err != nil {
		msg := augmentCompileError(err.Error())
		cause := fmt.Errorf("%w: %s", ErrCompile, msg)
		result := failure(msg, blobResults(blobs), cause)
		e.metrics.ObserveExecution("compile_error", time.Since(start))
		return result, nil
	}

	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		// The wrapped IIFE always produces a promise; if it somehow
		// didn't, treat the raw value as an immediate synchronous result.
		result := e.finish(v, st, val.Export(), blobs, start)
		return result, nil
	}

	state := e.poll(v, br, promise)

	switch state {
	case goja.PromiseStateFulfilled:
		v.MarkMainFulfilled()
		result := e.finish(v, st, promise.Result().Export(), blobs, start)
		return result, nil
	case goja.PromiseStateRejected:
		v.MarkMainFulfilled()
		msg := augmentRuntimeError(e.errorMessage(v.Runtime, promise.Result()))
		cause := fmt.Errorf("%w: %s", ErrGuestThrow, msg)
		result := failure(msg, blobResults(blobs), cause)
		e.metrics.ObserveExecution("guest_error", time.Since(start))
		return result, nil
	default: // still pending: timeout budget exhausted
		v.MarkMainFulfilled()
		result := failure("Execution timed out", blobResults(blobs), ErrTimeout)
		e.metrics.ObserveExecution("timeout", time.Since(start))
		return result, nil
	}
}

// poll waits for promise to settle, bounded by cfg.MaxPollIterations
// iterations of roughly cfg.PollInterval each (spec §4.5 step 6, §5
// "Suspension points"). It runs on the same goroutine that owns v's
// Runtime for the whole of this execution (the one that called Execute):
// br.Pump is what settles completed tool calls and pumps the guest's
// pending microtask queue, and it must only ever be called from here, not
// from a separate goroutine, since goja Runtimes are not safe for
// concurrent use.
func (e *Engine) poll(v *vm.VM, br *bridge.Bridge, promise *goja.Promise) goja.PromiseState {
	for i := 0; i < e.cfg.MaxPollIterations; i++ {
		if promise.State() != goja.PromiseStatePending {
			return promise.State()
		}
		time.Sleep(e.cfg.PollInterval)
		br.Pump()
		if promise.State() != goja.PromiseStatePending {
			return promise.State()
		}
	}
	return promise.State()
}

// finish absorbs the store, measures the serialised result size, and
// produces a successful ExecuteResult whose Result is that serialised
// value decoded back into encoding/json shapes, applying truncation if
// needed (spec §4.5 steps 7-8).
func (e *Engine) finish(v *vm.VM, st *store.Store, resultValue any, blobs *blob.Table, start time.Time) *ExecuteResult {
	st.Absorb(v.Runtime)

	blobList := blobResults(blobs)
	e.metrics.ObserveBlobsExtracted(len(blobList))

	serialised, err := json.Marshal(resultValue)
	if err != nil {
		e.metrics.ObserveExecution("unserialisable_result", time.Since(start))
		msg := fmt.Sprintf("result is not JSON-serialisable: %s", err.Error())
		return failure(msg, blobList, fmt.Errorf("%w: %s", ErrHostInternal, msg))
	}
	var normalised any
	if json.Unmarshal(serialised, &normalised) == nil {
		resultValue = normalised
	}

	result := &ExecuteResult{Success: true, Result: resultValue, Blobs: blobList}
	if len(serialised) > e.cfg.MaxResultChars {
		result.Error = fmt.Sprintf("Result truncated (%d > %d chars)", len(serialised), e.cfg.MaxResultChars)
		result.Err = fmt.Errorf("%w: %s", ErrTruncated, result.Error)
		e.metrics.ObserveExecution("truncated", time.Since(start))
		return result
	}

	e.metrics.ObserveExecution("success", time.Since(start))
	return result
}

// teardown disposes the VM inside a guarded block that tolerates late
// callbacks (spec §4.5 step 10). Any panic here is logged as HostInternal
// and never escapes to the caller.
func (e *Engine) teardown(v *vm.VM) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("engine: teardown panic recovered", zap.Any("panic", r))
		}
	}()
	v.Dispose()
}

func blobResults(table *blob.Table) []BlobResult {
	list := table.List()
	out := make([]BlobResult, 0, len(list))
	for _, b := range list {
		out = append(out, BlobResult{ID: b.ID, Data: b.Data, MimeType: b.MimeType})
	}
	return out
}

// errorMessage extracts a human-readable message from a rejected promise's
// result value, preferring a JS Error object's `.message`.
func (e *Engine) errorMessage(rt *goja.Runtime, val goja.Value) string {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "unknown error"
	}
	obj := val.ToObject(rt)
	if obj != nil {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return val.String()
}

// augmentCompileError leaves syntax errors as-is; spec §7 kind 1 only asks
// for augmentation of common "not defined" runtime messages, which can
// only occur once the script is running, not at compile time.
func augmentCompileError(msg string) string {
	return msg
}

// augmentRuntimeError appends a hint to the common case of a guest script
// reaching for setTimeout/setInterval, which this sandbox never defines
// (spec §6 "Attempting to use setTimeout/setInterval surfaces an
// undefined-name error; the Engine augments that message with a hint").
func augmentRuntimeError(msg string) string {
	if !strings.Contains(msg, "is not defined") {
		return msg
	}
	if strings.Contains(msg, "setTimeout") || strings.Contains(msg, "setInterval") {
		return msg + " (use tool('sleep', {ms}) instead of timers)"
	}
	return msg
}
