// Package events implements the Event Pipeline: optional host callbacks
// invoked before and after each tool call, with the ability to mutate
// arguments, short-circuit with a return value, or recover a failure into
// a success.
package events

import "context"

// BeforeToolCall is handed to the before-callback. The callback may
// overwrite Args and/or set ReturnValue together with HasReturn to
// short-circuit the handler.
type BeforeToolCall struct {
	ToolName    string
	Args        any
	ReturnValue any
	HasReturn   bool
}

// ToolCallSuccess is handed to the success-callback after a handler
// fulfils (or after a ReturnValue short-circuit). The callback may
// overwrite Result.
type ToolCallSuccess struct {
	ToolName string
	Args     any
	Result   any
}

// ToolCallError is handed to the error-callback after a handler rejects.
// The callback may set Result together with HasResult to recover the
// failure into a success.
type ToolCallError struct {
	ToolName  string
	Args      any
	Error     string
	Result    any
	HasResult bool
}

// BeforeFunc may overwrite ev.Args and/or request a short-circuit return.
// Setting ev.ReturnValue with ev.HasReturn = true means "skip the handler,
// resolve with this value instead". An error return rejects the guest
// promise with that error's message and skips the handler entirely.
type BeforeFunc func(ctx context.Context, ev *BeforeToolCall) error

// SuccessFunc may mutate ev.Result; the (possibly mutated) value is used
// as the final resolution.
type SuccessFunc func(ctx context.Context, ev *ToolCallSuccess) error

// ErrorFunc may set ev.Result (and ev.HasResult) to recover the failure.
type ErrorFunc func(ctx context.Context, ev *ToolCallError) error

// Pipeline bundles the three optional callback stages. Any or all may be
// nil, in which case that stage is a no-op passthrough.
type Pipeline struct {
	OnBeforeToolCall  BeforeFunc
	OnToolCallSuccess SuccessFunc
	OnToolCallError   ErrorFunc
}

// Before runs the before-callback, if any, against ev. A non-nil error
// means the before-callback itself threw: the caller must reject the
// guest promise with that error's message and must not invoke the
// handler.
func (p Pipeline) Before(ctx context.Context, ev *BeforeToolCall) error {
	if p.OnBeforeToolCall == nil {
		return nil
	}
	return p.OnBeforeToolCall(ctx, ev)
}

// Success runs the success-callback, if any, against ev, returning the
// (possibly mutated) result.
func (p Pipeline) Success(ctx context.Context, ev *ToolCallSuccess) (any, error) {
	if p.OnToolCallSuccess == nil {
		return ev.Result, nil
	}
	if err := p.OnToolCallSuccess(ctx, ev); err != nil {
		return nil, err
	}
	return ev.Result, nil
}

// Error runs the error-callback, if any, against ev. If the callback sets
// a recovery result, ok is true and value holds it; otherwise the caller
// should reject with ev.Error.
func (p Pipeline) Error(ctx context.Context, ev *ToolCallError) (value any, ok bool, err error) {
	if p.OnToolCallError == nil {
		return nil, false, nil
	}
	if err := p.OnToolCallError(ctx, ev); err != nil {
		return nil, false, err
	}
	if ev.HasResult {
		return ev.Result, true, nil
	}
	return nil, false, nil
}
