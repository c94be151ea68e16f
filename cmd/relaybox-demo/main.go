// Command relaybox-demo wires a Sandbox with a small sample tool catalog
// and runs one script against it, printing the ExecuteResult as JSON.
// It exists to exercise the library end to end; CLI packaging proper is
// out of scope for this repository (spec.md §1).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/relaybox/relaybox"
	"github.com/relaybox/relaybox/internal/config"
	"github.com/relaybox/relaybox/internal/logging"
	"github.com/relaybox/relaybox/internal/metrics"
)

func main() {
	code := flag.String("code", `return await tool('add', {a: 2, b: 3});`, "guest JavaScript source to execute")
	dev := flag.Bool("dev", false, "use development (console) logging")
	flag.Parse()

	log := logging.NewDefault()
	if *dev {
		log = logging.NewDevelopment()
	}
	defer log.Sync()

	sb, err := relaybox.NewSandbox(relaybox.SandboxOptions{
		Tools:   sampleTools(),
		Config:  config.LoadOrDefault(),
		Logger:  log,
		Metrics: metrics.NewMetrics(),
	})
	if err != nil {
		log.Error("failed to create sandbox", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := sb.Execute(ctx, *code)
	if err != nil {
		log.Error("execute failed", zap.Error(err))
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error("failed to marshal result", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func sampleTools() []relaybox.Tool {
	return []relaybox.Tool{
		{
			Name:        "add",
			Description: "Add two numbers.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "number"},
					"b": map[string]any{"type": "number"},
				},
				"required": []any{"a", "b"},
			},
			Handler: func(_ context.Context, args any) (any, error) {
				m, _ := args.(map[string]any)
				a, _ := m["a"].(float64)
				b, _ := m["b"].(float64)
				return map[string]any{"sum": a + b}, nil
			},
		},
		{
			Name:        "echo",
			Description: "Echo back the given message.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
				},
				"required": []any{"message"},
			},
			Handler: func(_ context.Context, args any) (any, error) {
				m, _ := args.(map[string]any)
				return map[string]any{"echoed": m["message"]}, nil
			},
		},
	}
}
