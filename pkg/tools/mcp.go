package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
)

// MCPConfig is the per-session MCP server configuration, supplied by the
// caller at invocation time.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig describes one server. Command starts a stdio server; URL
// connects to a streamable HTTP server. Exactly one of the two must be set.
type MCPServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
}

func (c MCPServerConfig) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ProviderSet owns the MCP client connections behind a set of discovered
// tools. Close it when the session ends.
type ProviderSet struct {
	clients []*client.Client
	logger  *slog.Logger
}

func (p *ProviderSet) CloseAll() {
	if p == nil {
		return
	}
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			p.logger.Warn("closing MCP client", "error", err)
		}
	}
	p.clients = nil
}

// Discover connects to every enabled server in cfg, lists its tools, and
// returns them as registry-ready Tools. A server that fails to connect is
// skipped with a warning so one bad server does not sink the session.
func Discover(ctx context.Context, cfg MCPConfig, logger *slog.Logger) (*ProviderSet, []Tool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &ProviderSet{logger: logger}
	var discovered []Tool

	for name, server := range cfg.MCPServers {
		if !server.enabled() {
			logger.Info("MCP server disabled", "server", name)
			continue
		}
		c, err := connect(ctx, name, server)
		if err != nil {
			logger.Warn("MCP server unavailable", "server", name, "error", err)
			continue
		}
		set.clients = append(set.clients, c)

		listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.Warn("listing MCP tools", "server", name, "error", err)
			continue
		}
		for _, t := range listed.Tools {
			schema, err := json.Marshal(t.InputSchema)
			if err != nil {
				logger.Warn("marshaling MCP tool schema", "server", name, "tool", t.Name, "error", err)
				continue
			}
			discovered = append(discovered, &mcpTool{
				client:      c,
				server:      name,
				name:        t.Name,
				description: t.Description,
				schema:      schema,
			})
		}
		logger.Info("MCP server connected", "server", name, "tools", len(listed.Tools))
	}
	return set, discovered, nil
}

func connect(ctx context.Context, name string, server MCPServerConfig) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch {
	case server.Command != "":
		env := make([]string, 0, len(server.Env))
		for k, v := range server.Env {
			env = append(env, k+"="+v)
		}
		c, err = client.NewStdioMCPClient(server.Command, env, server.Args...)
		if err != nil {
			return nil, errors.Wrapf(err, "start stdio server %s", name)
		}
	case server.URL != "":
		c, err = client.NewStreamableHttpClient(server.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "create http client for %s", name)
		}
		if err := c.Start(ctx); err != nil {
			return nil, errors.Wrapf(err, "connect to %s", name)
		}
	default:
		return nil, errors.Errorf("server %s has neither command nor url", name)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "voicewire-agent", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "initialize %s", name)
	}
	return c, nil
}

// mcpTool adapts one remote MCP tool to the Tool interface.
type mcpTool struct {
	client      *client.Client
	server      string
	name        string
	description string
	schema      json.RawMessage
}

func (t *mcpTool) Name() string { return t.name }

func (t *mcpTool) Spec() Spec {
	return Spec{Name: t.name, Description: t.description, InputSchema: t.schema}
}

func (t *mcpTool) Validate(input json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(input, &obj); err != nil {
		return errors.Wrap(err, "input must be a JSON object")
	}
	return nil
}

func (t *mcpTool) Invoke(ctx context.Context, input json.RawMessage) (any, error) {
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errors.Wrap(err, "decode tool input")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(ErrToolContract, "calling %s on %s: %v", t.name, t.server, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return nil, errors.Errorf("tool reported an error: %s", text)
	}
	// Always a string: the dispatcher wraps it as {"result": ...} even when
	// the text happens to be a JSON document itself.
	return text, nil
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

var _ Tool = (*mcpTool)(nil)
