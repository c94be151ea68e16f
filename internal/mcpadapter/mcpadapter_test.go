package mcpadapter

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestParsePlaceholders(t *testing.T) {
	got := parsePlaceholders("https://example.com/{owner}/{repo}/issues/{owner}")
	require.Equal(t, []string{"owner", "repo"}, got)
}

func TestExpandTemplate_Success(t *testing.T) {
	uri, err := expandTemplate("https://example.com/{owner}/{repo}", map[string]string{
		"owner": "octo cat",
		"repo":  "relaybox",
	})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/octo%20cat/relaybox", uri)
}

func TestExpandTemplate_MissingParam(t *testing.T) {
	_, err := expandTemplate("https://example.com/{owner}", map[string]string{})
	require.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "named", sanitizeName("named", "fallback://uri"))
	require.Equal(t, "fallback___uri", sanitizeName("", "fallback://uri"))
}

func TestUnwrapResult_PrefersStructuredContent(t *testing.T) {
	res := &mcp.CallToolResult{
		StructuredContent: map[string]any{"ok": true},
		Content:           []mcp.Content{mcp.TextContent{Type: "text", Text: "ignored"}},
	}
	got := unwrapResult(res)
	m := got.(map[string]any)
	require.Equal(t, true, m["ok"])
}

func TestUnwrapResult_FallsBackToJSONText(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: `{"n": 5}`}},
	}
	got := unwrapResult(res)
	m := got.(map[string]any)
	require.Equal(t, float64(5), m["n"])
}

func TestUnwrapResult_FallsBackToPlainText(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "not json"}},
	}
	got := unwrapResult(res)
	require.Equal(t, "not json", got)
}

func TestUnwrapResourceResult_Single(t *testing.T) {
	res := &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "file:///a", MIMEType: "text/plain", Text: "hello"},
		},
	}
	got := unwrapResourceResult(res).(map[string]any)
	require.Equal(t, "hello", got["text"])
}

func TestUnwrapResourceResult_Multiple(t *testing.T) {
	res := &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "file:///a", MIMEType: "text/plain", Text: "a"},
			mcp.TextResourceContents{URI: "file:///b", MIMEType: "text/plain", Text: "b"},
		},
	}
	got := unwrapResourceResult(res).([]map[string]any)
	require.Len(t, got, 2)
}
