package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ruleSchemaURI = "semgrep://rule/schema"
	ruleSchemaURL = "https://raw.githubusercontent.com/semgrep/semgrep-interfaces/refs/heads/main/rule_schema_v1.yaml"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ruleSchemaURI, "Semgrep Rule Schema",
		mcp.WithResourceDescription("Schema for Semgrep rule files"),
		mcp.WithMIMEType("text/plain"),
	), s.handleRuleSchema)

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate("semgrep://rule/{rule_id}/yaml", "Published rule source",
		mcp.WithTemplateDescription("YAML source of a rule published in the Semgrep registry"),
		mcp.WithTemplateMIMEType("text/plain"),
	), s.handleRuleYAML)
}

func (s *Server) handleRuleSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	body, err := s.platform.FetchURL(ctx, ruleSchemaURL)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     body,
		},
	}, nil
}

func (s *Server) handleRuleYAML(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ruleID, err := ruleIDFromURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	body, err := s.platform.FetchURL(ctx, "https://semgrep.dev/c/r/"+url.PathEscape(ruleID))
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     body,
		},
	}, nil
}

// ruleIDFromURI picks the rule id out of semgrep://rule/{rule_id}/yaml.
func ruleIDFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "semgrep://rule/")
	if !ok {
		return "", fmt.Errorf("unsupported resource URI %q", uri)
	}
	ruleID, ok := strings.CutSuffix(rest, "/yaml")
	if !ok || ruleID == "" || strings.Contains(ruleID, "/") {
		return "", fmt.Errorf("unsupported resource URI %q", uri)
	}
	return ruleID, nil
}
