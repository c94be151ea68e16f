package vm

import "testing"

func TestNew_IsolatesDangerousGlobals(t *testing.T) {
	v := New()
	for _, name := range []string{"fetch", "require", "setTimeout", "setInterval", "XMLHttpRequest", "process", "module"} {
		val, err := v.Runtime.RunString("typeof " + name)
		if err != nil {
			t.Fatalf("typeof %s: %v", name, err)
		}
		if val.String() != "undefined" {
			t.Fatalf("expected %s to be undefined, got %s", name, val.String())
		}
	}
}

func TestAtobBtoa_Roundtrip(t *testing.T) {
	v := New()
	val, err := v.Runtime.RunString(`btoa("hello")`)
	if err != nil {
		t.Fatalf("btoa: %v", err)
	}
	encoded := val.String()
	if encoded != "aGVsbG8=" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	val, err = v.Runtime.RunString(`atob("aGVsbG8=")`)
	if err != nil {
		t.Fatalf("atob: %v", err)
	}
	if val.String() != "hello" {
		t.Fatalf("unexpected decoding: %s", val.String())
	}
}

func TestMainFulfilled_FlagTransitions(t *testing.T) {
	v := New()
	if v.MainFulfilled() {
		t.Fatal("expected MainFulfilled to start false")
	}
	v.MarkMainFulfilled()
	if !v.MainFulfilled() {
		t.Fatal("expected MainFulfilled to be true after marking")
	}
}

func TestDispose_Idempotent(t *testing.T) {
	v := New()
	v.Dispose()
	if !v.Disposed() {
		t.Fatal("expected Disposed to be true")
	}
	v.Dispose() // must not panic
}
