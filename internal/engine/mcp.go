package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/httpheaders"
	"github.com/whuanle/easytouch/internal/version"
)

const (
	mcpProtocolVersion = "2025-11-25"
	mcpProbeTimeout    = 2 * time.Second

	// mcpToolsCommand lists the tools of an mcp instance.
	mcpToolsCommand = "tools"
)

// connection wraps an MCP client behind plain functions.
type connection struct {
	listTools func(ctx context.Context) ([]mcp.Tool, error)
	callTool  func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ping      func(ctx context.Context) error
	close     func() error
}

// mcpInstance exposes the tools of one MCP server as commands.
type mcpInstance struct {
	logger *zap.Logger
	conn   *connection
	tools  []mcp.Tool
}

// ToolInfo summarizes one tool for the tools command.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func startMCP(ctx context.Context, ec config.EngineConfig, logger *zap.Logger) (Instance, error) {
	var (
		c   *mcpclient.Client
		err error
	)
	switch {
	case ec.IsStdio():
		env := make([]string, 0, len(ec.Env))
		for k, v := range ec.Env {
			env = append(env, k+"="+v)
		}
		c, err = mcpclient.NewStdioMCPClient(ec.Command, env, ec.Args...)
		if err != nil {
			return nil, fmt.Errorf("creating stdio client: %w", err)
		}
	case ec.IsHTTP():
		headers := httpheaders.WithDefaults(ec.Headers, map[string]string{
			"User-Agent": "easytouch/" + version.String(),
		})
		c, err = mcpclient.NewStreamableHttpClient(ec.URL, transport.WithHTTPHeaders(headers))
		if err != nil {
			return nil, fmt.Errorf("creating HTTP client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("starting HTTP client: %w", err)
		}
	default:
		return nil, fmt.Errorf("mcp engine: no command or url configured")
	}

	initResult, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcpProtocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "easytouch",
				Version: version.String(),
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing: %w", err)
	}
	logger.Info("mcp server connected",
		zap.String("server", initResult.ServerInfo.Name),
		zap.String("server_version", initResult.ServerInfo.Version),
	)

	return &mcpInstance{
		logger: logger,
		conn: &connection{
			listTools: func(ctx context.Context) ([]mcp.Tool, error) {
				result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
				if err != nil {
					return nil, err
				}
				return result.Tools, nil
			},
			callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
				return c.CallTool(ctx, mcp.CallToolRequest{
					Params: mcp.CallToolParams{
						Name:      name,
						Arguments: args,
					},
				})
			},
			ping:  c.Ping,
			close: c.Close,
		},
	}, nil
}

// Execute calls the tool named by command. The tools command lists them.
func (m *mcpInstance) Execute(ctx context.Context, command string, args []string) (any, error) {
	if command == mcpToolsCommand {
		tools, err := m.listTools(ctx, true)
		if err != nil {
			return nil, err
		}
		infos := make([]ToolInfo, len(tools))
		for i, t := range tools {
			infos[i] = ToolInfo{Name: t.Name, Description: t.Description}
		}
		return infos, nil
	}

	tool, err := m.findTool(ctx, command)
	if err != nil {
		return nil, err
	}

	toolArgs, err := parseToolArgs(args)
	if err != nil {
		return nil, err
	}
	if schema := inputSchema(tool); schema != nil {
		if toolArgs, err = coerceToolArgs(toolArgs, schema); err != nil {
			return nil, err
		}
	}

	result, err := m.conn.callTool(ctx, tool.Name, toolArgs)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", tool.Name, err)
	}
	return toolResultData(result)
}

func (m *mcpInstance) listTools(ctx context.Context, refresh bool) ([]mcp.Tool, error) {
	if m.tools != nil && !refresh {
		return m.tools, nil
	}
	tools, err := m.conn.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	m.tools = tools
	return tools, nil
}

// findTool resolves command to a tool, accepting kebab-case for snake_case
// names and the reverse. The cached list is refreshed once on a miss.
func (m *mcpInstance) findTool(ctx context.Context, command string) (mcp.Tool, error) {
	for _, refresh := range []bool{false, true} {
		tools, err := m.listTools(ctx, refresh)
		if err != nil {
			return mcp.Tool{}, err
		}
		if tool, ok := matchTool(tools, command); ok {
			return tool, nil
		}
	}
	return mcp.Tool{}, fmt.Errorf("%w: %s (run %q to list tools)", ErrUnknownCommand, command, mcpToolsCommand)
}

func matchTool(tools []mcp.Tool, requested string) (mcp.Tool, bool) {
	candidates := []string{requested}
	switch {
	case strings.Contains(requested, "-"):
		candidates = append(candidates, strings.ReplaceAll(requested, "-", "_"))
	case strings.Contains(requested, "_"):
		candidates = append(candidates, strings.ReplaceAll(requested, "_", "-"))
	}
	for _, name := range candidates {
		for _, t := range tools {
			if t.Name == name {
				return t, true
			}
		}
	}
	return mcp.Tool{}, false
}

func inputSchema(t mcp.Tool) map[string]any {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(t.InputSchema); err != nil {
			return nil
		}
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil || len(schema) == 0 {
		return nil
	}
	return schema
}

// Alive sends an MCP ping.
func (m *mcpInstance) Alive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, mcpProbeTimeout)
	defer cancel()
	return m.conn.ping(probeCtx) == nil
}

// Close disconnects from the server. Stdio servers are stopped with it.
// The client exposes no kill, so a forced or timed-out close finishes in the
// background.
func (m *mcpInstance) Close(ctx context.Context, force bool) error {
	done := make(chan error, 1)
	go func() {
		done <- m.conn.close()
	}()
	if force {
		return nil
	}

	timer := time.NewTimer(gracefulCloseTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = fmt.Errorf("mcp server did not disconnect within %s", gracefulCloseTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.logger.Warn("mcp close", zap.Error(err))
	}
	return err
}
