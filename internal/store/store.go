// Package store implements the Store Codec: transferring the host-visible,
// JSON-serialisable store mapping into a guest VM before an execution and
// reading it back afterwards, with the reserved `_prev` slot injected and
// stripped at the boundary.
package store

import (
	"encoding/json"
	"sync"

	"github.com/dop251/goja"
)

// ReservedPrevKey is the non-writable, non-configurable, enumerable
// property the guest sees holding the previous execution's return value.
const ReservedPrevKey = "_prev"

// Store is the host-side, JSON-serialisable mapping persisted across
// executions. A Store is safe for concurrent reads/writes; mutation only
// ever happens wholesale (Set) between executions or by re-absorbing the
// guest's view after one (absorb).
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// New constructs an empty Store.
func New() *Store {
	return &Store{data: make(map[string]any)}
}

// Snapshot returns a shallow copy of the current store contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Set replaces the store wholesale with a new mapping. Any `_prev` key
// present in data is dropped: it is a guest-visible-only reserved slot and
// is never retained host-side.
func (s *Store) Set(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(data))
	for k, v := range data {
		if k == ReservedPrevKey {
			continue
		}
		cp[k] = v
	}
	s.data = cp
}

// Hydrate installs `globalThis.store` in vm as a plain guest object parsed
// from the current snapshot's JSON, and defines the `_prev` property on it
// per spec §4.1/§4.5: non-writable, non-configurable, enumerable, holding
// prevResult (a JSON null if there was none).
func (s *Store) Hydrate(vm *goja.Runtime, prevResult any) error {
	snapshot, err := json.Marshal(s.Snapshot())
	if err != nil {
		return err
	}

	if err := vm.Set("__relaybox_store_json__", string(snapshot)); err != nil {
		return err
	}
	if err := vm.Set("__relaybox_prev_result__", prevResult); err != nil {
		return err
	}
	defer func() {
		vm.GlobalObject().Delete("__relaybox_store_json__")
		vm.GlobalObject().Delete("__relaybox_prev_result__")
	}()

	const initScript = `
(function() {
  globalThis.store = JSON.parse(__relaybox_store_json__);
  Object.defineProperty(globalThis.store, "_prev", {
    value: __relaybox_prev_result__,
    writable: false,
    configurable: false,
    enumerable: true,
  });
})();
`
	_, err = vm.RunString(initScript)
	return err
}

// Absorb reads `globalThis.store` back out of vm, normalises it to
// encoding/json shapes (numbers as float64), strips `_prev`, and replaces
// the host-side snapshot with the result. It returns the stripped mapping
// for convenience.
func (s *Store) Absorb(vm *goja.Runtime) map[string]any {
	raw := vm.Get("store")
	var exported map[string]any
	if raw != nil && !goja.IsUndefined(raw) && !goja.IsNull(raw) {
		if m, ok := raw.Export().(map[string]any); ok {
			exported = m
			if data, err := json.Marshal(m); err == nil {
				var normalised map[string]any
				if json.Unmarshal(data, &normalised) == nil && normalised != nil {
					exported = normalised
				}
			}
		}
	}
	if exported == nil {
		exported = map[string]any{}
	}
	delete(exported, ReservedPrevKey)
	s.Set(exported)
	return s.Snapshot()
}
