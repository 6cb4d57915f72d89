// Package mcp implements the Model Context Protocol (MCP) server for sidero
// using the mcp-go library.
//
// The server bridges two external collaborators to LLM clients: the semgrep
// engine (run as a subprocess per request) and the Semgrep AppSec Platform
// findings API. It communicates via stdin/stdout using JSON-RPC 2.0 as
// specified by the MCP standard; the library owns message framing, request/
// response correlation by id, and per-message dispatch, so a slow scan never
// blocks an unrelated request on the same stream.
//
// # Tools
//
//   - semgrep_scan: run rules against existing paths
//   - semgrep_scan_with_custom_rule: run an inline YAML rule against files,
//     staging inline contents to a request-scoped temp directory
//   - get_abstract_syntax_tree: dump the AST of a code snippet
//   - semgrep_findings: fetch findings from the platform API (needs a token)
//   - get_version, supported_languages: engine introspection
//
// # Error handling
//
// Tool failures (validation, scan timeout, engine exit, upstream API errors)
// are answered as tool error results carrying the original request id; they
// never terminate the server. Only transport-level failures end the process.
//
// # Usage
//
// The server is typically started as a subprocess by an MCP client:
//
//	sidero serve
//
// It reads requests from stdin and writes responses to stdout until EOF.
//
// # References
//
// - MCP Specification: https://modelcontextprotocol.io/specification
// - mcp-go Library: https://github.com/mark3labs/mcp-go
package mcp
