// Package mcpadapter converts a remote MCP-style catalog (tools, prompts,
// resources, and resource templates) into local tool.Tool definitions
// ready for Sandbox.AddTool, per spec.md §6 "External MCP-style adapter".
//
// This is additive to the core engine (§1 scopes the remote-catalog
// adapter out of the Execution Engine's design) but spec.md §6 still
// specifies its interface in full, so this package supplies one concrete
// implementation grounded on jkaninda-akili's internal/tools/mcp bridge.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaybox/relaybox/internal/logging"
	"github.com/relaybox/relaybox/internal/tool"
)

// templatePlaceholder matches `{param}` segments in a resource template's
// URI template.
var templatePlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Bridge discovers tools/prompts/resources/resource-templates from a
// connected MCP client and adapts them into tool.Tool values. A Bridge
// carries no per-connection state of its own; Discover does the work for
// one client at a time.
type Bridge struct {
	log *logging.Logger
}

// NewBridge constructs an adapter Bridge. log may be nil.
func NewBridge(log *logging.Logger) *Bridge {
	if log == nil {
		log = logging.NewNop()
	}
	return &Bridge{log: log}
}

// Discover connects tools, prompts, resources, and resource templates from
// client under the given prefix, returning every adapted tool.Tool it
// could build. Per spec §6, "the adapter tolerates endpoints that are not
// supported by a given client (each catalog fetch is independent and
// failures are ignored)": a client lacking prompts/resources support
// simply contributes nothing from that endpoint rather than failing the
// whole discovery.
func (b *Bridge) Discover(ctx context.Context, prefix string, client mcpclient.MCPClient) []tool.Tool {
	var out []tool.Tool
	out = append(out, b.discoverTools(ctx, prefix, client)...)
	out = append(out, b.discoverPrompts(ctx, prefix, client)...)
	out = append(out, b.discoverResources(ctx, prefix, client)...)
	out = append(out, b.discoverResourceTemplates(ctx, prefix, client)...)
	return out
}

func (b *Bridge) discoverTools(ctx context.Context, prefix string, client mcpclient.MCPClient) []tool.Tool {
	resp, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		b.log.Debug("mcpadapter: ListTools unsupported or failed, skipping")
		return nil
	}
	out := make([]tool.Tool, 0, len(resp.Tools))
	for _, remote := range resp.Tools {
		remote := remote
		name := fmt.Sprintf("%s__%s", prefix, remote.Name)
		schema, _ := toInputSchema(remote.InputSchema)
		out = append(out, tool.Tool{
			Name:        name,
			Description: remote.Description,
			InputSchema: schema,
			Handler: func(ctx context.Context, args any) (any, error) {
				req := mcp.CallToolRequest{}
				req.Params.Name = remote.Name
				req.Params.Arguments = toArgsMap(args)
				res, err := client.CallTool(ctx, req)
				if err != nil {
					return nil, fmt.Errorf("mcp tool %s: %w", remote.Name, err)
				}
				return unwrapResult(res), nil
			},
		})
	}
	return out
}

func (b *Bridge) discoverPrompts(ctx context.Context, prefix string, client mcpclient.MCPClient) []tool.Tool {
	resp, err := client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		b.log.Debug("mcpadapter: ListPrompts unsupported or failed, skipping")
		return nil
	}
	out := make([]tool.Tool, 0, len(resp.Prompts))
	for _, remote := range resp.Prompts {
		remote := remote
		name := fmt.Sprintf("%s__prompt__%s", prefix, remote.Name)
		props := map[string]any{}
		var required []any
		for _, arg := range remote.Arguments {
			props[arg.Name] = map[string]any{"type": "string"}
			if arg.Required {
				required = append(required, arg.Name)
			}
		}
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		out = append(out, tool.Tool{
			Name:        name,
			Description: remote.Description,
			InputSchema: schema,
			Handler: func(ctx context.Context, args any) (any, error) {
				req := mcp.GetPromptRequest{}
				req.Params.Name = remote.Name
				req.Params.Arguments = toStringMap(args)
				res, err := client.GetPrompt(ctx, req)
				if err != nil {
					return nil, fmt.Errorf("mcp prompt %s: %w", remote.Name, err)
				}
				return unwrapPromptResult(res), nil
			},
		})
	}
	return out
}

func (b *Bridge) discoverResources(ctx context.Context, prefix string, client mcpclient.MCPClient) []tool.Tool {
	resp, err := client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		b.log.Debug("mcpadapter: ListResources unsupported or failed, skipping")
		return nil
	}
	out := make([]tool.Tool, 0, len(resp.Resources))
	for _, remote := range resp.Resources {
		remote := remote
		name := fmt.Sprintf("%s__resource__%s", prefix, sanitizeName(remote.Name, remote.URI))
		out = append(out, tool.Tool{
			Name:        name,
			Description: remote.Description,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			Handler: func(ctx context.Context, _ any) (any, error) {
				req := mcp.ReadResourceRequest{}
				req.Params.URI = remote.URI
				res, err := client.ReadResource(ctx, req)
				if err != nil {
					return nil, fmt.Errorf("mcp resource %s: %w", remote.URI, err)
				}
				return unwrapResourceResult(res), nil
			},
		})
	}
	return out
}

func (b *Bridge) discoverResourceTemplates(ctx context.Context, prefix string, client mcpclient.MCPClient) []tool.Tool {
	resp, err := client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		b.log.Debug("mcpadapter: ListResourceTemplates unsupported or failed, skipping")
		return nil
	}
	out := make([]tool.Tool, 0, len(resp.ResourceTemplates))
	for _, remote := range resp.ResourceTemplates {
		remote := remote
		templateName := remote.Name
		if templateName == "" {
			templateName = "template_" + uuid.NewString()[:8]
		}
		name := fmt.Sprintf("%s__resource__%s", prefix, sanitizeName(templateName, remote.URITemplate.Raw()))

		placeholders := parsePlaceholders(remote.URITemplate.Raw())
		props := map[string]any{}
		required := make([]any, 0, len(placeholders))
		for _, p := range placeholders {
			props[p] = map[string]any{"type": "string"}
			required = append(required, p)
		}
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}

		uriTemplate := remote.URITemplate.Raw()
		out = append(out, tool.Tool{
			Name:        name,
			Description: remote.Description,
			InputSchema: schema,
			Handler: func(ctx context.Context, args any) (any, error) {
				uri, err := expandTemplate(uriTemplate, toStringMap(args))
				if err != nil {
					return nil, err
				}
				req := mcp.ReadResourceRequest{}
				req.Params.URI = uri
				res, err := client.ReadResource(ctx, req)
				if err != nil {
					return nil, fmt.Errorf("mcp resource template %s: %w", uriTemplate, err)
				}
				return unwrapResourceResult(res), nil
			},
		})
	}
	return out
}

// parsePlaceholders extracts every `{param}` name from a URI template, in
// order of first appearance, deduplicated.
func parsePlaceholders(template string) []string {
	matches := templatePlaceholder.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// expandTemplate substitutes each `{param}` placeholder with its
// percent-encoded value from values.
func expandTemplate(template string, values map[string]string) (string, error) {
	var missing string
	expanded := templatePlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			missing = name
			return m
		}
		return url.PathEscape(v)
	})
	if missing != "" {
		return "", fmt.Errorf("missing required resource-template parameter: %s", missing)
	}
	return expanded, nil
}

func sanitizeName(name, fallback string) string {
	if name != "" {
		return name
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, fallback)
}

func toInputSchema(schema any) (map[string]any, bool) {
	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, false
	}
	if m["type"] == nil {
		m["type"] = "object"
	}
	return m, true
}

func toArgsMap(args any) map[string]any {
	if m, ok := args.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func toStringMap(args any) map[string]string {
	m, ok := args.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}

// unwrapResult prefers a structured-content field, falling back to the
// first text content interpreted as JSON then as plain text, per spec §6
// "Results from the remote are unwrapped preferring a structured-content
// field, falling back to the first text content interpreted as JSON then
// as plain text."
func unwrapResult(res *mcp.CallToolResult) any {
	if res == nil {
		return nil
	}
	if res.StructuredContent != nil {
		return res.StructuredContent
	}
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			var parsed any
			if err := json.Unmarshal([]byte(tc.Text), &parsed); err == nil {
				return parsed
			}
			return tc.Text
		}
	}
	return nil
}

func unwrapPromptResult(res *mcp.GetPromptResult) any {
	if res == nil {
		return nil
	}
	messages := make([]map[string]any, 0, len(res.Messages))
	for _, msg := range res.Messages {
		entry := map[string]any{"role": string(msg.Role)}
		if tc, ok := mcp.AsTextContent(msg.Content); ok {
			entry["content"] = tc.Text
		}
		messages = append(messages, entry)
	}
	return map[string]any{"description": res.Description, "messages": messages}
}

func unwrapResourceResult(res *mcp.ReadResourceResult) any {
	if res == nil || len(res.Contents) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(res.Contents))
	for _, c := range res.Contents {
		if tc, ok := mcp.AsTextResourceContents(c); ok {
			out = append(out, map[string]any{"uri": tc.URI, "mimeType": tc.MIMEType, "text": tc.Text})
			continue
		}
		if bc, ok := mcp.AsBlobResourceContents(c); ok {
			out = append(out, map[string]any{"uri": bc.URI, "mimeType": bc.MIMEType, "blob": bc.Blob})
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
