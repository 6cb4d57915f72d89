package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sidero/internal/api"
	"sidero/internal/semgrep"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools builds the tool registry. Descriptors are constructed once
// here and are immutable for the life of the process.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("semgrep_scan",
		mcp.WithDescription("Run a Semgrep scan on specific paths"),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("List of file paths to scan"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("config",
			mcp.Description("Rule configuration, e.g. a registry reference like \"p/security-audit\""),
		),
	), s.handleScan)

	s.mcpServer.AddTool(mcp.NewTool("semgrep_scan_with_custom_rule",
		mcp.WithDescription("Run a scan with a custom ad-hoc rule"),
		mcp.WithString("rule",
			mcp.Required(),
			mcp.Description("YAML rule content"),
		),
		mcp.WithArray("code_files",
			mcp.Required(),
			mcp.Description("Files to scan: plain paths, or {path, content} objects for inline code"),
		),
	), s.handleScanWithCustomRule)

	s.mcpServer.AddTool(mcp.NewTool("get_abstract_syntax_tree",
		mcp.WithDescription("Get the AST of a code snippet"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Code content"),
		),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Language of the code"),
		),
	), s.handleDumpAST)

	s.mcpServer.AddTool(mcp.NewTool("semgrep_findings",
		mcp.WithDescription("Fetch Semgrep findings from the AppSec Platform (requires SEMGREP_APP_TOKEN)"),
		mcp.WithString("issue_type", mcp.Description("Filter by issue type")),
		mcp.WithString("status", mcp.Description("Filter by finding status")),
		mcp.WithArray("repos",
			mcp.Description("Restrict to these repositories"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("severities",
			mcp.Description("Restrict to these severities"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleFindings)

	s.mcpServer.AddTool(mcp.NewTool("get_version",
		mcp.WithDescription("Get Semgrep version"),
	), s.handleVersion)

	s.mcpServer.AddTool(mcp.NewTool("supported_languages",
		mcp.WithDescription("List languages supported by the Semgrep engine"),
	), s.handleSupportedLanguages)
}

func (s *Server) handleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := req.GetStringSlice("paths", nil)
	ruleset := req.GetString("config", "")

	out, err := s.engine.Scan(ctx, paths, ruleset)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) handleScanWithCustomRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, err := req.RequireString("rule")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	files, err := parseCodeFiles(req.GetArguments()["code_files"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.engine.ScanWithCustomRule(ctx, rule, files)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) handleDumpAST(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	language, err := req.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.engine.DumpAST(ctx, code, language)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) handleFindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := api.FindingsQuery{
		IssueType:  req.GetString("issue_type", ""),
		Status:     req.GetString("status", ""),
		Repos:      req.GetStringSlice("repos", nil),
		Severities: req.GetStringSlice("severities", nil),
	}

	out, err := s.platform.Findings(ctx, q)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) handleVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	version, err := s.engine.Version(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(version), nil
}

func (s *Server) handleSupportedLanguages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langs, err := s.engine.SupportedLanguages(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(strings.Join(langs, ", ")), nil
}

// parseCodeFiles accepts the two wire shapes of code_files: a plain path
// string, or a {path, content} object for inline code.
func parseCodeFiles(raw any) ([]semgrep.CodeFile, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("code_files must be a non-empty array")
	}

	files := make([]semgrep.CodeFile, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			files = append(files, semgrep.CodeFile{Path: v})
		case map[string]any:
			path, _ := v["path"].(string)
			content, _ := v["content"].(string)
			if path == "" {
				return nil, fmt.Errorf("code_files[%d]: missing path", i)
			}
			files = append(files, semgrep.CodeFile{Path: path, Content: content})
		default:
			return nil, fmt.Errorf("code_files[%d]: expected a path string or {path, content} object", i)
		}
	}
	return files, nil
}

// jsonResult pretty-prints an engine/API payload as a text content block.
func jsonResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Already validated upstream; fall back to the raw bytes.
		return mcp.NewToolResultText(string(raw)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// toolError converts a classified failure into a tool error result. The
// error kind leads the message so clients can branch without parsing prose.
func toolError(err error) *mcp.CallToolResult {
	if code := semgrep.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", code, err))
	}

	var authErr *api.AuthError
	if errors.As(err, &authErr) {
		return mcp.NewToolResultError(fmt.Sprintf("[auth_error] %v", err))
	}
	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return mcp.NewToolResultError(fmt.Sprintf("[network_error] %v", err))
	}
	var upErr *api.UpstreamError
	if errors.As(err, &upErr) {
		return mcp.NewToolResultError(fmt.Sprintf("[upstream_error] %v", err))
	}

	return mcp.NewToolResultError(err.Error())
}
