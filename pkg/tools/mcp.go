package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bashme-ai/bashme/pkg/config"
)

const (
	defaultStartupTimeout = 8 * time.Second
	defaultCallTimeout    = 30 * time.Second
	defaultTerminateWait  = 1 * time.Second
	maxToolNameLength     = 64
)

var toolNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RegistryClient is the daemon's connection to the tool registry. One
// session is established at warm-up and reused for every tool call until
// Close; with the default command transport that session owns the
// registry subprocess.
type RegistryClient struct {
	cfg     config.ToolsConfig
	client  *mcp.Client
	session *mcp.ClientSession
}

func NewRegistryClient(cfg config.ToolsConfig) *RegistryClient {
	return &RegistryClient{
		cfg: cfg,
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "bashme-daemon",
			Version: "v0.1.0",
		}, nil),
	}
}

// LoadRegistryTools connects to the registry and discovers its tool set.
// The returned client must be kept open for as long as the tools are in
// use and closed on shutdown.
func LoadRegistryTools(ctx context.Context, cfg config.ToolsConfig) (*RegistryClient, []Tool, error) {
	client := NewRegistryClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}

	tools, err := client.Tools(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("tool discovery failed: %w", err)
	}
	return client, tools, nil
}

// Connect establishes the registry session. The startup timeout bounds the
// handshake only; the session itself lives until Close.
func (c *RegistryClient) Connect(ctx context.Context) error {
	transport, err := c.buildTransport()
	if err != nil {
		return err
	}

	startupTimeout := durationFromMS(c.cfg.Registry.StartupTimeoutMS, defaultStartupTimeout)
	connectCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	session, err := c.client.Connect(connectCtx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect tool registry: %w", err)
	}
	c.session = session
	return nil
}

func (c *RegistryClient) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// Tools lists the registry's tools and wraps each one as a locally callable
// Tool routed through this client's session.
func (c *RegistryClient) Tools(ctx context.Context) ([]Tool, error) {
	if c.session == nil {
		return nil, fmt.Errorf("tool registry not connected")
	}

	all := make([]*mcp.Tool, 0)
	cursor := ""
	for {
		params := &mcp.ListToolsParams{}
		if cursor != "" {
			params.Cursor = cursor
		}
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	callTimeout := durationFromMS(c.cfg.Registry.CallTimeoutMS, defaultCallTimeout)
	usedNames := make(map[string]int)
	loaded := make([]Tool, 0, len(all))
	for _, rt := range all {
		if rt == nil || strings.TrimSpace(rt.Name) == "" {
			continue
		}
		loaded = append(loaded, &RemoteTool{
			localName:   buildLocalToolName(c.cfg.Registry.ToolPrefix, rt.Name, usedNames),
			remoteName:  rt.Name,
			description: buildToolDescription(rt.Name, rt.Description),
			parameters:  normalizeInputSchema(rt.InputSchema),
			callTimeout: callTimeout,
			client:      c,
		})
	}
	return loaded, nil
}

// FetchPrompt retrieves a named prompt's text from the registry. Multiple
// text messages are joined with newlines.
func (c *RegistryClient) FetchPrompt(ctx context.Context, name string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("tool registry not connected")
	}

	res, err := c.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name})
	if err != nil {
		return "", fmt.Errorf("get prompt %q: %w", name, err)
	}

	parts := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		if msg == nil {
			continue
		}
		if tc, ok := msg.Content.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("prompt %q has no text content", name)
	}
	return strings.Join(parts, "\n"), nil
}

func (c *RegistryClient) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("tool registry not connected")
	}
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return result, nil
}

func (c *RegistryClient) buildTransport() (mcp.Transport, error) {
	transport := strings.ToLower(strings.TrimSpace(c.cfg.Registry.Transport))
	if transport == "" {
		transport = "command"
	}

	switch transport {
	case "command":
		return c.buildCommandTransport()
	case "streamable_http":
		endpoint, err := c.requiredRegistryURL("streamable_http")
		if err != nil {
			return nil, err
		}
		return &mcp.StreamableClientTransport{Endpoint: endpoint}, nil
	case "sse":
		endpoint, err := c.requiredRegistryURL("sse")
		if err != nil {
			return nil, err
		}
		return &mcp.SSEClientTransport{Endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("tool registry: unsupported transport %q", c.cfg.Registry.Transport)
	}
}

func (c *RegistryClient) buildCommandTransport() (mcp.Transport, error) {
	command := strings.TrimSpace(c.cfg.Registry.Command)
	args := c.cfg.Registry.Args
	if command == "" {
		// No command configured: spawn this binary's own toolserver.
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		command = exe
		if len(args) == 0 {
			args = []string{"toolserver"}
			if hf := config.ExpandHome(c.cfg.HistoryFile); hf != "" {
				args = append(args, "--history-file", hf)
			}
		}
	}

	cmd := exec.Command(command, args...)
	if len(c.cfg.Registry.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.cfg.Registry.Env)
	}
	cmd.Stderr = os.Stderr

	tr := &mcp.CommandTransport{Command: cmd}
	tr.TerminateDuration = defaultTerminateWait
	return tr, nil
}

func (c *RegistryClient) requiredRegistryURL(transport string) (string, error) {
	endpoint := strings.TrimSpace(c.cfg.Registry.URL)
	if endpoint == "" {
		return "", fmt.Errorf("tool registry: url is required for %s transport", transport)
	}
	return endpoint, nil
}

// RemoteTool is a registry tool made locally callable. Execution routes
// through the shared registry session; every failure folds into an error
// result rather than surfacing as a Go error.
type RemoteTool struct {
	localName   string
	remoteName  string
	description string
	parameters  map[string]any
	callTimeout time.Duration
	client      *RegistryClient
}

func (t *RemoteTool) Name() string {
	return t.localName
}

func (t *RemoteTool) Description() string {
	return t.description
}

func (t *RemoteTool) Parameters() map[string]any {
	return t.parameters
}

func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	callCtx := ctx
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	result, err := t.client.callTool(callCtx, t.remoteName, args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	text, err := formatCallToolResult(result)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if result.IsError {
		return ErrorResult("tool error: " + text)
	}
	return NewToolResult(text)
}

func formatCallToolResult(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("empty registry response")
	}

	// Explicit text content is the registry's rendering for the model;
	// prefer it over the structured envelope.
	if text, ok := allTextResult(result); ok {
		return text, nil
	}

	out := map[string]any{}
	if len(result.Content) > 0 {
		out["content"] = result.Content
	}
	if result.StructuredContent != nil {
		out["structured_content"] = result.StructuredContent
	}
	if result.IsError {
		out["is_error"] = true
	}
	if len(out) == 0 {
		return "(empty tool response)", nil
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tool response: %w", err)
	}
	return string(data), nil
}

func allTextResult(result *mcp.CallToolResult) (string, bool) {
	if result == nil || len(result.Content) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		tc, ok := content.(*mcp.TextContent)
		if !ok {
			return "", false
		}
		parts = append(parts, tc.Text)
	}
	return strings.Join(parts, "\n"), true
}

// buildLocalToolName applies the configured prefix and keeps names unique
// and within the length limit. With no prefix, registry names pass through
// unchanged so the instruction prompt can reference them directly.
func buildLocalToolName(prefix, remoteName string, used map[string]int) string {
	base := remoteName
	if p := strings.TrimSpace(prefix); p != "" {
		base = p + "_" + remoteName
	}
	base = sanitizeToolName(base)
	if base == "" {
		base = "registry_tool"
	}

	candidate := truncateToolName(base)
	if used[candidate] == 0 {
		used[candidate] = 1
		return candidate
	}

	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate = truncateWithSuffix(base, suffix)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
	}
}

func buildToolDescription(remoteName, rawDescription string) string {
	if desc := strings.TrimSpace(rawDescription); desc != "" {
		return desc
	}
	return fmt.Sprintf("Call registry tool %q.", remoteName)
}

func normalizeInputSchema(schema any) map[string]any {
	fallback := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}

	if schema == nil {
		return fallback
	}

	var out map[string]any
	switch v := schema.(type) {
	case map[string]any:
		out = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fallback
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return fallback
		}
	}

	if out == nil {
		return fallback
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if out["type"] == "object" {
		if _, ok := out["properties"]; !ok {
			out["properties"] = map[string]any{}
		}
	}
	return out
}

func sanitizeToolName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = toolNameSanitizer.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_-")
	return name
}

func truncateToolName(name string) string {
	if len(name) <= maxToolNameLength {
		return name
	}
	return name[:maxToolNameLength]
}

func truncateWithSuffix(base, suffix string) string {
	if len(suffix) >= maxToolNameLength {
		return suffix[len(suffix)-maxToolNameLength:]
	}
	maxBase := maxToolNameLength - len(suffix)
	if len(base) > maxBase {
		base = base[:maxBase]
	}
	return base + suffix
}

func durationFromMS(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Millisecond
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	merged := append([]string{}, base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return merged
}
