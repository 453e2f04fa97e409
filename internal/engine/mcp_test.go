package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	tools     []mcp.Tool
	listCalls int
	lastName  string
	lastArgs  map[string]any
	result    *mcp.CallToolResult
	callErr   error
	pingErr   error
	closed    chan struct{}
}

func (f *fakeServer) instance() *mcpInstance {
	f.closed = make(chan struct{})
	return &mcpInstance{
		logger: zap.NewNop(),
		conn: &connection{
			listTools: func(context.Context) ([]mcp.Tool, error) {
				f.listCalls++
				return f.tools, nil
			},
			callTool: func(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
				f.lastName = name
				f.lastArgs = args
				return f.result, f.callErr
			},
			ping: func(context.Context) error { return f.pingErr },
			close: func() error {
				close(f.closed)
				return nil
			},
		},
	}
}

func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_pages",
		Description: "Search indexed pages",
		RawInputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"limit": {"type": "integer"},
				"exact": {"type": "boolean"},
				"tags":  {"type": "array"}
			},
			"required": ["query"]
		}`),
	}
}

func TestMCPExecuteCoercesKeyValueArgs(t *testing.T) {
	srv := &fakeServer{
		tools:  []mcp.Tool{searchTool()},
		result: mcp.NewToolResultText("3 hits"),
	}
	inst := srv.instance()

	got, err := inst.Execute(context.Background(), "search-pages", []string{"query=go", "limit=5", "exact=true", "tags=a,b"})
	require.NoError(t, err)

	assert.Equal(t, "3 hits", got)
	assert.Equal(t, "search_pages", srv.lastName)
	assert.Equal(t, map[string]any{
		"query": "go",
		"limit": int64(5),
		"exact": true,
		"tags":  []any{"a", "b"},
	}, srv.lastArgs)
}

func TestMCPExecuteAcceptsJSONObject(t *testing.T) {
	srv := &fakeServer{
		tools:  []mcp.Tool{searchTool()},
		result: mcp.NewToolResultText("ok"),
	}
	inst := srv.instance()

	_, err := inst.Execute(context.Background(), "search_pages", []string{`{"query":"go","limit":2}`})
	require.NoError(t, err)
	assert.Equal(t, float64(2), srv.lastArgs["limit"])
}

func TestMCPExecuteRejectsMissingRequired(t *testing.T) {
	srv := &fakeServer{tools: []mcp.Tool{searchTool()}}
	inst := srv.instance()

	_, err := inst.Execute(context.Background(), "search_pages", []string{"limit=1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
	assert.Empty(t, srv.lastName, "tool must not be called")
}

func TestMCPExecuteUnknownToolRefreshesOnce(t *testing.T) {
	srv := &fakeServer{tools: []mcp.Tool{searchTool()}}
	inst := srv.instance()

	_, err := inst.Execute(context.Background(), "delete_everything", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, 2, srv.listCalls)
}

func TestMCPExecuteToolErrorBecomesError(t *testing.T) {
	srv := &fakeServer{
		tools:  []mcp.Tool{searchTool()},
		result: mcp.NewToolResultError("index offline"),
	}
	inst := srv.instance()

	_, err := inst.Execute(context.Background(), "search_pages", []string{"query=go"})
	require.Error(t, err)
	assert.Equal(t, "index offline", err.Error())
}

func TestMCPExecuteTransportErrorIsWrapped(t *testing.T) {
	srv := &fakeServer{
		tools:   []mcp.Tool{searchTool()},
		callErr: errors.New("pipe closed"),
	}
	inst := srv.instance()

	_, err := inst.Execute(context.Background(), "search_pages", []string{"query=go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calling search_pages")
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestMCPToolsCommandListsTools(t *testing.T) {
	srv := &fakeServer{tools: []mcp.Tool{searchTool()}}
	inst := srv.instance()

	got, err := inst.Execute(context.Background(), "tools", nil)
	require.NoError(t, err)
	assert.Equal(t, []ToolInfo{{Name: "search_pages", Description: "Search indexed pages"}}, got)
}

func TestMCPAliveUsesPing(t *testing.T) {
	srv := &fakeServer{}
	inst := srv.instance()
	assert.True(t, inst.Alive(context.Background()))

	srv.pingErr = errors.New("no response")
	assert.False(t, inst.Alive(context.Background()))
}

func TestMCPCloseDisconnects(t *testing.T) {
	srv := &fakeServer{}
	inst := srv.instance()

	require.NoError(t, inst.Close(context.Background(), false))
	select {
	case <-srv.closed:
	default:
		t.Fatal("connection was not closed")
	}
}

func TestParseToolArgsRejectsBareWords(t *testing.T) {
	_, err := parseToolArgs([]string{"query"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want key=value")
}

func TestParseToolArgsStripsFlagDashes(t *testing.T) {
	got, err := parseToolArgs([]string{"--query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "a=b"}, got)
}

func TestCoerceToolArgsReportsTypeErrors(t *testing.T) {
	schema := inputSchema(searchTool())
	_, err := coerceToolArgs(map[string]any{"query": "x", "limit": "many"}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "limit"`)
}

func TestSchemaTypeSkipsNull(t *testing.T) {
	assert.Equal(t, "integer", schemaType(map[string]any{"type": []any{"null", "integer"}}))
	assert.Equal(t, "", schemaType(map[string]any{}))
}

func TestToolResultDataPrefersStructuredContent(t *testing.T) {
	result := &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(`{"n":1}`)},
		StructuredContent: map[string]any{"n": 1},
	}
	got, err := toolResultData(result)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1}, got)
}

func TestToolResultDataSavesImages(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("caption"),
			mcp.NewImageContent("aGVsbG8=", "image/png"),
		},
	}
	got, err := toolResultData(result)
	require.NoError(t, err)

	parts, ok := got.([]any)
	require.True(t, ok, "want multiple parts, got %T", got)
	require.Len(t, parts, 2)
	assert.Equal(t, "caption", parts[0])

	file, ok := parts[1].(ContentFile)
	require.True(t, ok, "want ContentFile, got %T", parts[1])
	t.Cleanup(func() { os.Remove(file.Path) })

	assert.Equal(t, "image", file.Type)
	assert.Equal(t, "image/png", file.MIMEType)
	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestToolResultDataNilResult(t *testing.T) {
	_, err := toolResultData(nil)
	require.Error(t, err)
}

func TestExtForMIMEType(t *testing.T) {
	assert.Equal(t, ".png", extForMIMEType("image/png"))
	assert.Equal(t, ".jpg", extForMIMEType("IMAGE/JPEG; q=1"))
	assert.Equal(t, ".bin", extForMIMEType(""))
	assert.Equal(t, ".json", extForMIMEType("application/vnd.custom+json"))
}
