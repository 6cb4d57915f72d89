package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"sidero/internal/api"
	"sidero/internal/auth"
	"sidero/internal/config"
	"sidero/internal/logging"
	"sidero/internal/semgrep"

	"github.com/mark3labs/mcp-go/server"
)

// engine is the subprocess side of the bridge, implemented by
// semgrep.Runner.
type engine interface {
	Version(ctx context.Context) (string, error)
	SupportedLanguages(ctx context.Context) ([]string, error)
	Scan(ctx context.Context, paths []string, config string) (json.RawMessage, error)
	ScanWithCustomRule(ctx context.Context, rule string, files []semgrep.CodeFile) (json.RawMessage, error)
	DumpAST(ctx context.Context, code, language string) (json.RawMessage, error)
}

// platform is the HTTP side of the bridge, implemented by api.Client.
type platform interface {
	Findings(ctx context.Context, q api.FindingsQuery) (json.RawMessage, error)
	FetchURL(ctx context.Context, rawURL string) (string, error)
}

// Server wires the tool registry to its handlers and serves the stdio
// transport. The registry is fixed at startup; there is no runtime mutation.
type Server struct {
	cfg     *config.Config
	logger  *logging.AppLogger
	version string

	engine   engine
	platform platform

	mcpServer *server.MCPServer
}

// NewServer creates an MCP server instance from the effective configuration.
// The platform token is resolved once here and shared read-only by all
// findings calls.
func NewServer(cfg *config.Config, logger *logging.AppLogger, version string) *Server {
	token := auth.NewCredentialManager().ResolveToken()
	return &Server{
		cfg:      cfg,
		logger:   logger,
		version:  version,
		engine:   semgrep.NewRunner(cfg.SemgrepPath, cfg.ScanTimeout, cfg.MaxConcurrentScans, logger),
		platform: api.NewClient(cfg.APIBaseURL, token),
	}
}

// build constructs the underlying mcp-go server and registers the fixed
// tool/prompt/resource registry on it.
func (s *Server) build() *server.MCPServer {
	s.mcpServer = server.NewMCPServer(
		"sidero",
		s.version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
	)

	s.registerTools()
	s.registerPrompts()
	s.registerResources()

	return s.mcpServer
}

// Serve registers tools, prompts and resources, then blocks on the stdio
// transport until stdin closes (clean shutdown) or framing fails (error).
// Stream closure cancels every in-flight job through its request context.
func (s *Server) Serve() error {
	s.logger.Info("Initializing MCP server", "version", s.version)

	s.build()

	s.logger.Info("MCP server created, starting stdio transport")

	if err := s.listen(context.Background(), os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	s.logger.Info("Input stream closed, shutting down")
	return nil
}

// listen drives the stdio transport over the given streams. The input reader
// is wrapped so that closure of the stream cancels the serving context, which
// kills every in-flight engine subprocess and removes its staged files before
// listen returns. Without this the transport would wait for running jobs to
// finish on their own.
func (s *Server) listen(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(s.logger.StandardLog())

	err := stdio.Listen(ctx, &cancelOnCloseReader{r: in, cancel: cancel}, out)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// cancelOnCloseReader cancels the serving context as soon as the input stream
// reports any read error, EOF included.
type cancelOnCloseReader struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (c *cancelOnCloseReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil {
		c.cancel()
	}
	return n, err
}
