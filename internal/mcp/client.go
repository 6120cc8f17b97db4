package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Client manages the lifetime of a single MCP server subprocess and exposes
// the small RPC surface the task runner needs: connect, list tools, call a
// tool, reconnect, and close. Exactly one request is ever in flight; there is
// no internal queueing beyond what the stdio transport already serializes.
type Client struct {
	config *ServerConfig
	logger *slog.Logger

	mu        sync.Mutex
	transport *stdioTransport
	tools     []*Tool
	info      struct{ Name, Version string }
}

// NewClient constructs a Client bound to cfg. Connect must be called before
// any other method.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: cfg, logger: logger.With("component", "mcp_client")}
}

// minNodeMajorVersion is the lowest Node.js major version the reference
// browser MCP server supports.
const minNodeMajorVersion = 18

// CheckNodeRuntime verifies a JavaScript runtime of at least
// minNodeMajorVersion is on PATH, returning install guidance in the error
// when it is not. Exported for the doctor subcommand's preflight checks.
func CheckNodeRuntime() error {
	return checkNodeRuntime()
}

// checkNodeRuntime verifies a JavaScript runtime of at least
// minNodeMajorVersion is on PATH, returning install guidance in the error
// when it is not.
func checkNodeRuntime() error {
	out, err := exec.Command("node", "--version").Output()
	if err != nil {
		return fmt.Errorf("node.js runtime not found on PATH (need >= v%d); install Node.js from https://nodejs.org: %w", minNodeMajorVersion, err)
	}
	version := strings.TrimSpace(string(out))
	major, parseErr := parseNodeMajor(version)
	if parseErr != nil {
		return fmt.Errorf("could not parse node.js version %q: %w", version, parseErr)
	}
	if major < minNodeMajorVersion {
		return fmt.Errorf("node.js %s found but version >= v%d is required; upgrade Node.js from https://nodejs.org", version, minNodeMajorVersion)
	}
	return nil
}

func parseNodeMajor(version string) (int, error) {
	v := strings.TrimPrefix(version, "v")
	parts := strings.SplitN(v, ".", 2)
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty version string")
	}
	return strconv.Atoi(parts[0])
}

// Connect validates the Node.js prerequisite, launches the MCP subprocess
// with its profile directory argument, performs the MCP handshake, and
// caches the tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := checkNodeRuntime(); err != nil {
		return NewConnectionError(err)
	}
	if err := c.config.Validate(); err != nil {
		return NewConnectionError(err)
	}

	args := append([]string{}, c.config.Args...)
	if c.config.ProfileDir != "" {
		args = append(args, "--profile", c.config.ProfileDir)
	}
	launchCfg := *c.config
	launchCfg.Args = args

	c.mu.Lock()
	c.transport = newStdioTransport(&launchCfg, c.logger)
	c.mu.Unlock()

	if err := c.transport.connect(ctx); err != nil {
		return NewConnectionError(fmt.Errorf("launch subprocess: %w", err))
	}

	result, err := c.transport.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      clientInfo{Name: "subterminator", Version: "1.0.0"},
	})
	if err != nil {
		c.transport.close()
		return NewConnectionError(fmt.Errorf("initialize handshake: %w", err))
	}

	var initResult initializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.close()
		return NewConnectionError(fmt.Errorf("parse initialize result: %w", err))
	}

	c.mu.Lock()
	c.info.Name = initResult.ServerInfo.Name
	c.info.Version = initResult.ServerInfo.Version
	c.mu.Unlock()

	c.logger.Info("mcp handshake complete", "server", initResult.ServerInfo.Name, "protocol", initResult.ProtocolVersion)

	if err := c.transport.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if _, err := c.ListTools(ctx); err != nil {
		c.transport.close()
		return NewConnectionError(fmt.Errorf("list tools: %w", err))
	}

	return nil
}

// ListTools returns the tool catalog advertised by the server, memoized
// after the first successful call.
func (c *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	c.mu.Lock()
	if c.tools != nil {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		return nil, fmt.Errorf("mcp: not connected")
	}

	result, err := transport.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var resp listToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("mcp: parse tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()

	return resp.Tools, nil
}

// CallTool invokes a named tool and returns its concatenated text result.
// A server-reported tool failure comes back as a *ToolError carrying the
// server's message verbatim; a failure while the subprocess is gone comes
// back as a *ConnectionError.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return "", fmt.Errorf("mcp: not connected")
	}

	params := callToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return "", fmt.Errorf("mcp: marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	result, err := transport.call(ctx, "tools/call", params)
	if err != nil {
		if !transport.connected.Load() {
			return "", NewConnectionError(err)
		}
		return "", err
	}

	var callResult CallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return "", fmt.Errorf("mcp: parse tools/call result: %w", err)
	}
	if callResult.IsError {
		return "", NewToolError(name, errors.New(callResult.Text()))
	}
	return callResult.Text(), nil
}

// Reconnect closes the current transport (if any) and connects fresh,
// clearing the cached tool list.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.tools = nil
	c.mu.Unlock()

	if transport != nil {
		transport.close()
	}
	return c.Connect(ctx)
}

// Close releases the subprocess and stdio streams. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.close()
}

// WithClient connects cfg, invokes fn, and guarantees Close runs on every
// exit path — the scoped-acquisition pattern the task runner relies on to
// never leak the subprocess.
func WithClient(ctx context.Context, cfg *ServerConfig, logger *slog.Logger, fn func(*Client) error) error {
	client := NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}
