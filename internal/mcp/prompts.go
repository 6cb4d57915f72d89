package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt("write_custom_semgrep_rule",
		mcp.WithPromptDescription("Helper to write a custom Semgrep rule"),
		mcp.WithArgument("code",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Code snippet to analyze"),
		),
		mcp.WithArgument("language",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Language of the code"),
		),
	), s.handleWriteRulePrompt)
}

func (s *Server) handleWriteRulePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	code := req.Params.Arguments["code"]
	language := req.Params.Arguments["language"]

	text := fmt.Sprintf(
		"You are an expert at writing Semgrep rules.\n\nCode to analyze:\n```%s\n%s\n```\n\nLanguage: %s\n\nCreate a Semgrep rule to detect issues in this code.",
		language, code, language,
	)

	return mcp.NewGetPromptResult(
		"Write custom rule",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}
