package blob

import (
	"regexp"
	"testing"
)

var blobIDPattern = regexp.MustCompile(`^blob_[a-z0-9]{6}$`)

func TestExtract_NoRecognisedShape(t *testing.T) {
	table := NewTable()
	in := map[string]any{"sum": float64(5)}
	out := Extract(in, table)
	if len(table.List()) != 0 {
		t.Fatalf("expected no blobs, got %d", len(table.List()))
	}
	m := out.(map[string]any)
	if m["sum"] != float64(5) {
		t.Fatalf("unexpected passthrough value: %v", m)
	}
}

func TestExtract_LiftsImage(t *testing.T) {
	table := NewTable()
	in := map[string]any{"type": "image", "data": "QUJD", "mimeType": "image/png"}
	out := Extract(in, table).(map[string]any)
	if out["type"] != "blob_ref" {
		t.Fatalf("expected blob_ref, got %v", out)
	}
	id := out["id"].(string)
	if !blobIDPattern.MatchString(id) {
		t.Fatalf("id %q does not match expected pattern", id)
	}
	if out["mimeType"] != "image/png" {
		t.Fatalf("unexpected mimeType: %v", out["mimeType"])
	}
	blobs := table.List()
	if len(blobs) != 1 || blobs[0].Data != "QUJD" {
		t.Fatalf("expected one blob with original data preserved, got %v", blobs)
	}
}

func TestExtract_LiftsResourceBlob(t *testing.T) {
	table := NewTable()
	in := map[string]any{"blob": "ZGF0YQ==", "mimeType": "application/pdf"}
	out := Extract(in, table).(map[string]any)
	if out["type"] != "blob_ref" {
		t.Fatalf("expected blob_ref, got %v", out)
	}
}

func TestExtract_TwoDistinctIDsSamePayload(t *testing.T) {
	table := NewTable()
	shape := func() map[string]any {
		return map[string]any{"type": "image", "data": "same", "mimeType": "image/png"}
	}
	out1 := Extract(shape(), table).(map[string]any)
	out2 := Extract(shape(), table).(map[string]any)
	if out1["id"] == out2["id"] {
		t.Fatalf("expected distinct ids for two extractions, got same id %v", out1["id"])
	}
	if len(table.List()) != 2 {
		t.Fatalf("expected two blobs, got %d", len(table.List()))
	}
}

func TestExtract_Recursive(t *testing.T) {
	table := NewTable()
	in := map[string]any{
		"items": []any{
			map[string]any{"type": "image", "data": "a", "mimeType": "image/png"},
			map[string]any{"label": "plain"},
		},
	}
	out := Extract(in, table).(map[string]any)
	items := out["items"].([]any)
	first := items[0].(map[string]any)
	if first["type"] != "blob_ref" {
		t.Fatalf("expected nested image to be lifted, got %v", first)
	}
	second := items[1].(map[string]any)
	if second["label"] != "plain" {
		t.Fatalf("expected unrelated object to pass through unchanged, got %v", second)
	}
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	table := NewTable()
	in := map[string]any{"type": "image", "data": "a", "mimeType": "image/png"}
	_ = Extract(in, table)
	if in["type"] != "image" {
		t.Fatalf("input was mutated: %v", in)
	}
}

func TestExtract_SiblingBlobOrderIsDeterministic(t *testing.T) {
	in := map[string]any{
		"z": map[string]any{"type": "image", "data": "z-data", "mimeType": "image/png"},
		"a": map[string]any{"type": "image", "data": "a-data", "mimeType": "image/png"},
		"m": map[string]any{"type": "image", "data": "m-data", "mimeType": "image/png"},
	}
	var firstOrder []string
	for i := 0; i < 20; i++ {
		table := NewTable()
		Extract(in, table)
		var dataOrder []string
		for _, b := range table.List() {
			dataOrder = append(dataOrder, b.Data)
		}
		if i == 0 {
			firstOrder = dataOrder
			continue
		}
		if len(dataOrder) != len(firstOrder) {
			t.Fatalf("run %d: expected %d blobs, got %d", i, len(firstOrder), len(dataOrder))
		}
		for j := range dataOrder {
			if dataOrder[j] != firstOrder[j] {
				t.Fatalf("run %d: blob order diverged, got %v want %v", i, dataOrder, firstOrder)
			}
		}
	}
	want := []string{"a-data", "m-data", "z-data"}
	for i := range want {
		if firstOrder[i] != want[i] {
			t.Fatalf("expected sorted-key order %v, got %v", want, firstOrder)
		}
	}
}

func TestTable_ResetClears(t *testing.T) {
	table := NewTable()
	Extract(map[string]any{"type": "image", "data": "a", "mimeType": "image/png"}, table)
	if len(table.List()) != 1 {
		t.Fatal("expected one blob before reset")
	}
	table.Reset()
	if len(table.List()) != 0 {
		t.Fatal("expected no blobs after reset")
	}
}
