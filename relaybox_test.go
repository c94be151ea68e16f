package relaybox

import (
	"context"
	"testing"
	"time"

	"github.com/relaybox/relaybox/internal/config"
)

func testOptions(tools ...Tool) SandboxOptions {
	cfg := config.Default()
	cfg.MaxPollIterations = 50
	cfg.PollInterval = 10 * time.Millisecond
	return SandboxOptions{Tools: tools, Config: cfg}
}

func addTool() Tool {
	return Tool{
		Name:        "add",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(_ context.Context, args any) (any, error) {
			m := args.(map[string]any)
			a, _ := m["a"].(float64)
			b, _ := m["b"].(float64)
			return a + b, nil
		},
	}
}

func TestNewSandbox_DuplicateToolNameFails(t *testing.T) {
	_, err := NewSandbox(testOptions(addTool(), addTool()))
	if err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestSandbox_ScenarioOne_SingleToolCall(t *testing.T) {
	sb, err := NewSandbox(testOptions(addTool()))
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	result, err := sb.Execute(context.Background(), `return await tool('add',{a:2,b:3});`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Result != float64(5) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Blobs) != 0 {
		t.Fatalf("expected no blobs, got %v", result.Blobs)
	}
}

func TestSandbox_StoreRoundTrip(t *testing.T) {
	sb, err := NewSandbox(testOptions())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	if _, err := sb.Execute(context.Background(), `store.k = {nested: [1,2,3]};`); err != nil {
		t.Fatalf("Execute #1: %v", err)
	}
	result, err := sb.Execute(context.Background(), `return store.k;`)
	if err != nil {
		t.Fatalf("Execute #2: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
	m := result.Result.(map[string]any)
	arr := m["nested"].([]any)
	if len(arr) != 3 {
		t.Fatalf("expected 3 elements, got %v", arr)
	}
	snap := sb.Store()
	if _, ok := snap["k"]; !ok {
		t.Fatalf("expected store snapshot to contain k, got %v", snap)
	}
}

func TestSandbox_RemoveToolNotFound(t *testing.T) {
	sb, err := NewSandbox(testOptions())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	if err := sb.RemoveTool("nonexistent"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestSandbox_AddToolRefreshesDescription(t *testing.T) {
	sb, err := NewSandbox(testOptions())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	before := sb.ExecuteDescription()
	if err := sb.AddTool(addTool()); err != nil {
		t.Fatalf("AddTool: %v", err)
	}
	after := sb.ExecuteDescription()
	if before == after {
		t.Fatal("expected description to change after AddTool")
	}
}

func TestSandbox_RaceLoserQuiescence(t *testing.T) {
	sb, err := NewSandbox(testOptions(
		Tool{
			Name:        "fast",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(_ context.Context, _ any) (any, error) {
				time.Sleep(5 * time.Millisecond)
				return "fast", nil
			},
		},
		Tool{
			Name:        "slow",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(ctx context.Context, _ any) (any, error) {
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
				}
				return "slow", nil
			},
		},
	))
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}

	script := `
		const winner = await Promise.race([
			tool('fast', {}),
			tool('slow', {}).then(function(v) { store.modified = true; return v; }),
		]);
		return winner;
	`
	start := time.Now()
	result, err := sb.Execute(context.Background(), script)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Result != "fast" {
		t.Fatalf("expected fast to win, got %+v", result)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("expected race to settle quickly, took %s", elapsed)
	}
	if sb.Store()["modified"] == true {
		t.Fatal("expected loser side effect to not be observed")
	}
}

func TestSandbox_ExecuteTool_WrapsExecute(t *testing.T) {
	sb, err := NewSandbox(testOptions(addTool()))
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	et := sb.ExecuteTool()
	if et.Name != "execute" {
		t.Fatalf("expected name execute, got %s", et.Name)
	}
	out, err := et.Handler(context.Background(), map[string]any{"code": `return await tool('add',{a:1,b:1});`})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	result := out.(*ExecuteResult)
	if !result.Success || result.Result != float64(2) {
		t.Fatalf("unexpected result: %+v", result)
	}
}
