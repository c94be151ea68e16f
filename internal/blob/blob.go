// Package blob implements the Blob Extractor: a pure recursive transform
// that lifts recognised binary payload shapes out of a tool result into a
// per-execution side table, substituting a blob_ref in their place.
package blob

import (
	"sort"

	"github.com/relaybox/relaybox/internal/ids"
)

// Blob is a binary payload lifted out of a tool result. Data is opaque
// base64 text, as produced by the tool handler that emitted it.
type Blob struct {
	ID       string
	Data     string
	MimeType string
}

// Table is the current execution's blob side table. It is cleared at the
// start of each execution (Reset) and populated only from within that
// execution. A Table is not safe for concurrent use; only the one
// goroutine that owns the execution's VM ever writes to it.
type Table struct {
	gen   *ids.Generator
	byID  map[string]Blob
	order []string
}

// NewTable constructs an empty blob Table.
func NewTable() *Table {
	return &Table{gen: ids.NewGenerator(), byID: make(map[string]Blob)}
}

// Reset clears the table for a new execution.
func (t *Table) Reset() {
	t.byID = make(map[string]Blob)
	t.order = nil
}

// Lookup implements tool.BlobSource.
func (t *Table) Lookup(id string) (data, mimeType string, ok bool) {
	b, ok := t.byID[id]
	if !ok {
		return "", "", false
	}
	return b.Data, b.MimeType, true
}

// List returns the table's blobs in insertion order, the order spec §4.2
// guarantees for the ExecuteResult.blobs list.
func (t *Table) List() []Blob {
	out := make([]Blob, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// put inserts data/mimeType under a freshly generated, collision-free id
// and returns that id.
func (t *Table) put(data, mimeType string) string {
	var id string
	for {
		id = t.gen.Blob()
		if _, exists := t.byID[id]; !exists {
			break
		}
	}
	t.byID[id] = Blob{ID: id, Data: data, MimeType: mimeType}
	t.order = append(t.order, id)
	return id
}

// Extract walks value recursively, lifting every recognised binary shape
// into table and replacing it with a {type: "blob_ref", id, mimeType}
// reference. It never mutates value; the returned value may share
// unmodified sub-structures with the input but any branch containing a
// lifted shape is freshly allocated.
//
// Object keys are visited in sorted order rather than Go's randomised map
// iteration order: a map[string]any has no preserved insertion order to
// fall back to, but the extraction order still has to be deterministic
// (spec.md §4.2's "stable relative ordering of blobs") so that two sibling
// blob-shaped values always get assigned ids, and so appear in
// ExecuteResult.Blobs, in the same order on every run.
func Extract(value any, table *Table) any {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := liftImage(v, table); ok {
			return ref
		}
		if ref, ok := liftResourceBlob(v, table); ok {
			return ref
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for _, k := range keys {
			out[k] = Extract(v[k], table)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = Extract(sub, table)
		}
		return out
	default:
		return v
	}
}

// liftImage recognises {type: "image"|"audio", data: string, mimeType: string}.
func liftImage(m map[string]any, table *Table) (any, bool) {
	typ, _ := m["type"].(string)
	if typ != "image" && typ != "audio" {
		return nil, false
	}
	data, dataOK := m["data"].(string)
	mimeType, mimeOK := m["mimeType"].(string)
	if !dataOK || !mimeOK {
		return nil, false
	}
	id := table.put(data, mimeType)
	return map[string]any{"type": "blob_ref", "id": id, "mimeType": mimeType}, true
}

// liftResourceBlob recognises {blob: string, mimeType: string}; other
// fields at this position are lost per spec §4.2.
func liftResourceBlob(m map[string]any, table *Table) (any, bool) {
	data, dataOK := m["blob"].(string)
	mimeType, mimeOK := m["mimeType"].(string)
	if !dataOK || !mimeOK {
		return nil, false
	}
	id := table.put(data, mimeType)
	return map[string]any{"type": "blob_ref", "id": id, "mimeType": mimeType}, true
}
