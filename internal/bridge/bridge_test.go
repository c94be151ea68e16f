package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaybox/relaybox/internal/blob"
	"github.com/relaybox/relaybox/internal/events"
	"github.com/relaybox/relaybox/internal/tool"
	"github.com/relaybox/relaybox/internal/vm"
)

func TestBridge_SuccessfulToolCall(t *testing.T) {
	registry, err := tool.NewRegistry([]tool.Tool{
		{
			Name:        "add",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(_ context.Context, args any) (any, error) {
				m := args.(map[string]any)
				a, _ := m["a"].(float64)
				b, _ := m["b"].(float64)
				return map[string]any{"sum": a + b}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	v := vm.New()
	blobs := blob.NewTable()
	br := New(context.Background(), v, registry, blobs, events.Pipeline{}, nil, Hooks{})
	br.Install()
	defer br.Close()

	_, err = v.Runtime.RunString(`
		globalThis.__result = null;
		globalThis.__done = false;
		tool('add', {a: 2, b: 3}).then(function(r) {
			__result = r;
			__done = true;
		});
	`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		br.Pump()
		done := v.Runtime.Get("__done")
		if done != nil && done.ToBoolean() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := v.Runtime.Get("__done")
	if done == nil || !done.ToBoolean() {
		t.Fatal("expected tool call to resolve")
	}
	result := v.Runtime.Get("__result").Export().(map[string]any)
	if result["sum"] != float64(5) {
		t.Fatalf("expected sum=5, got %v", result)
	}
}

func TestBridge_ToolNotFound(t *testing.T) {
	registry, err := tool.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	v := vm.New()
	br := New(context.Background(), v, registry, blob.NewTable(), events.Pipeline{}, nil, Hooks{})
	br.Install()
	defer br.Close()

	_, err = v.Runtime.RunString(`
		globalThis.__err = null;
		globalThis.__done = false;
		tool('nope', {}).catch(function(e) { __err = e.message; __done = true; });
	`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		br.Pump()
		done := v.Runtime.Get("__done")
		if done != nil && done.ToBoolean() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	errVal := v.Runtime.Get("__err")
	if errVal == nil || errVal.String() != "Tool not found: nope" {
		t.Fatalf("unexpected error value: %v", errVal)
	}
}

func TestBridge_BeforeCallbackShortCircuit(t *testing.T) {
	called := false
	registry, err := tool.NewRegistry([]tool.Tool{
		{
			Name:        "expensive",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(_ context.Context, _ any) (any, error) {
				called = true
				return map[string]any{"computed": true}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	pipeline := events.Pipeline{
		OnBeforeToolCall: func(_ context.Context, ev *events.BeforeToolCall) error {
			ev.ReturnValue = map[string]any{"cached": true}
			ev.HasReturn = true
			return nil
		},
	}

	v := vm.New()
	br := New(context.Background(), v, registry, blob.NewTable(), pipeline, nil, Hooks{})
	br.Install()
	defer br.Close()

	_, err = v.Runtime.RunString(`
		globalThis.__result = null;
		globalThis.__done = false;
		tool('expensive', {}).then(function(r) { __result = r; __done = true; });
	`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		br.Pump()
		done := v.Runtime.Get("__done")
		if done != nil && done.ToBoolean() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if called {
		t.Fatal("expected handler to be skipped when ReturnValue short-circuits")
	}
	result := v.Runtime.Get("__result").Export().(map[string]any)
	if result["cached"] != true {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestBridge_HandlerErrorRecovered(t *testing.T) {
	registry, err := tool.NewRegistry([]tool.Tool{
		{
			Name:        "flaky",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(_ context.Context, _ any) (any, error) {
				return nil, errors.New("boom")
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	pipeline := events.Pipeline{
		OnToolCallError: func(_ context.Context, ev *events.ToolCallError) error {
			ev.Result = "recovered"
			ev.HasResult = true
			return nil
		},
	}

	v := vm.New()
	br := New(context.Background(), v, registry, blob.NewTable(), pipeline, nil, Hooks{})
	br.Install()
	defer br.Close()

	_, err = v.Runtime.RunString(`
		globalThis.__result = null;
		globalThis.__done = false;
		tool('flaky', {}).then(function(r) { __result = r; __done = true; });
	`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		br.Pump()
		done := v.Runtime.Get("__done")
		if done != nil && done.ToBoolean() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if v.Runtime.Get("__result").String() != "recovered" {
		t.Fatalf("expected recovered result, got %v", v.Runtime.Get("__result"))
	}
}
