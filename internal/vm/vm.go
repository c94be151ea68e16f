// Package vm wraps a single goja.Runtime with the global-scrubbing,
// base64 codecs, and interrupt/disposal bookkeeping the Execution Engine
// needs around one guest VM's lifecycle.
//
// A VM is deliberately single-execution: callers provision a fresh one per
// execute.handler call (spec §4.5 step 1) rather than resetting and
// reusing a goja.Runtime, since goja Runtimes are not safe for concurrent
// access and the spec's resource model (§5) treats each execution as
// owning its own context.
package vm

import (
	"encoding/base64"
	"sync/atomic"
	"unicode/utf8"

	"github.com/dop251/goja"
)

// VM bundles a goja.Runtime with the flags the Tool Bridge's serialisation
// queue consults before touching the guest (spec §4.4 step 7a, §5
// "Cancellation of abandoned work").
type VM struct {
	Runtime *goja.Runtime

	mainFulfilled atomic.Bool
	disposed      atomic.Bool
}

// New provisions a fresh guest VM with the fixed global surface spec §6
// describes: the scripting engine's standard value types (goja provides
// these natively), URI codecs (also native to goja), atob/btoa, and
// nothing else — no require, process, fetch, XMLHttpRequest, setTimeout,
// or setInterval are ever installed, so `typeof X` on any of them yields
// "undefined" without any extra scrubbing step.
func New() *VM {
	rt := goja.New()
	v := &VM{Runtime: rt}
	v.installCodecs()
	return v
}

func (v *VM) installCodecs() {
	v.Runtime.Set("atob", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			panic(v.Runtime.NewTypeError("atob: invalid base64 input"))
		}
		return v.Runtime.ToValue(string(decoded))
	})
	v.Runtime.Set("btoa", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		if !utf8.ValidString(s) {
			panic(v.Runtime.NewTypeError("btoa: invalid input string"))
		}
		return v.Runtime.ToValue(base64.StdEncoding.EncodeToString([]byte(s)))
	})
}

// InstallFunc registers a Go-backed host function under name in the guest
// global scope. Used by the Tool Bridge to install `tool`.
func (v *VM) InstallFunc(name string, fn func(goja.FunctionCall) goja.Value) {
	v.Runtime.Set(name, fn)
}

// MarkMainFulfilled flips the execution-barrier flag the interrupt hook
// and the Bridge's resolution queue consult: once set, no further guest
// work (new microtasks, pending tool resolutions) may touch the VM.
func (v *VM) MarkMainFulfilled() {
	v.mainFulfilled.Store(true)
	v.Runtime.Interrupt("main promise settled")
}

// MainFulfilled reports whether the main guest promise has already
// settled.
func (v *VM) MainFulfilled() bool {
	return v.mainFulfilled.Load()
}

// Disposed reports whether Dispose has already run.
func (v *VM) Disposed() bool {
	return v.disposed.Load()
}

// PumpMicrotasks forces goja to drain any queued promise reactions.
// goja settles a Promise's reactions synchronously as part of whichever
// RunProgram/RunString call causes the settlement; when a host task
// resolves a promise capability from outside any running script, this
// no-op evaluation is what gives goja's job queue a chance to run before
// the polling loop re-checks the main promise's state.
func (v *VM) PumpMicrotasks() {
	if v.disposed.Load() {
		return
	}
	_, _ = v.Runtime.RunString("void 0;")
}

// Dispose tears the VM down. It is idempotent and tolerates being called
// after an interrupt or teardown fault; any code path that still holds a
// reference to this VM (e.g. a resolution dequeued late from the Bridge's
// queue) must check Disposed() before using Runtime again.
func (v *VM) Dispose() {
	if !v.disposed.CompareAndSwap(false, true) {
		return
	}
	v.Runtime.Interrupt("sandbox disposed")
}
