// Package semgrep runs the semgrep engine as a subprocess and normalizes its
// results. It owns the full job lifecycle: staging inline payloads to a
// request-scoped temp directory, building a bounded argument list, enforcing
// a wall-clock timeout, draining stdout/stderr, classifying exit codes, and
// removing staged files on every exit path.
package semgrep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sidero/internal/logging"

	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"
)

// stderrExcerptLimit bounds the stderr excerpt attached to error results.
const stderrExcerptLimit = 4 * 1024

// waitDelay is how long a killed process gets to release its pipes before
// Wait gives up on them.
const waitDelay = 5 * time.Second

// CodeFile is one scan target. When Content is set the file is staged into
// the job's temp directory under Path (a relative name); otherwise Path
// refers to an existing file or directory on disk.
type CodeFile struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// Runner invokes the semgrep executable. It is safe for concurrent use; each
// job gets its own staging directory and subprocess.
type Runner struct {
	bin     string
	timeout time.Duration
	sem     *semaphore.Weighted // nil when fan-out is unbounded
	logger  *logging.AppLogger
}

// NewRunner creates a Runner for the given executable. maxConcurrent bounds
// the number of simultaneously running engine processes; 0 means unbounded.
func NewRunner(bin string, timeout time.Duration, maxConcurrent int, logger *logging.AppLogger) *Runner {
	if strings.TrimSpace(bin) == "" {
		bin = "semgrep"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if logger == nil {
		logger = logging.GetDefault()
	}
	return &Runner{bin: bin, timeout: timeout, sem: sem, logger: logger}
}

// Available reports whether the engine executable can be resolved.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.bin)
	return err == nil
}

// Version returns the engine's version string.
func (r *Runner) Version(ctx context.Context) (string, error) {
	stdout, _, err := r.run(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// SupportedLanguages returns the languages the engine can analyze.
func (r *Runner) SupportedLanguages(ctx context.Context) ([]string, error) {
	stdout, _, err := r.run(ctx, []string{"show", "supported-languages"})
	if err != nil {
		return nil, err
	}

	var langs []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			langs = append(langs, line)
		}
	}
	return langs, nil
}

// Scan runs the engine against existing paths with a ruleset reference.
// An empty config leaves ruleset selection to the engine's own defaults.
func (r *Runner) Scan(ctx context.Context, paths []string, config string) (json.RawMessage, error) {
	if len(paths) == 0 {
		return nil, invalidArgument("paths must not be empty")
	}
	for _, p := range paths {
		if err := validateTarget(p); err != nil {
			return nil, err
		}
	}
	if err := validateRuleset(config); err != nil {
		return nil, err
	}

	args := []string{"scan", "--json", "--experimental"}
	if config != "" {
		args = append(args, "--config", config)
	}
	args = append(args, paths...)

	return r.runAndParse(ctx, args)
}

// ScanWithCustomRule stages an inline YAML rule (and any inline file
// contents) and scans the given files with it.
func (r *Runner) ScanWithCustomRule(ctx context.Context, rule string, files []CodeFile) (json.RawMessage, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, invalidArgument("rule must not be empty")
	}
	if err := validateRuleYAML(rule); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, invalidArgument("code_files must not be empty")
	}
	// Validate everything before any file is staged: a validation failure
	// must not leave artifacts behind.
	for _, f := range files {
		if f.Content == "" {
			if err := validateTarget(f.Path); err != nil {
				return nil, err
			}
		} else if strings.TrimSpace(f.Path) == "" {
			return nil, invalidArgument("inline code file needs a path name")
		}
	}

	stage, err := newStagingDir()
	if err != nil {
		return nil, err
	}
	defer stage.Cleanup()

	rulePath, err := stage.WriteFile("rule.yaml", rule)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(files))
	for _, f := range files {
		if f.Content == "" {
			targets = append(targets, f.Path)
			continue
		}
		staged, err := stage.WriteFile(f.Path, f.Content)
		if err != nil {
			return nil, err
		}
		targets = append(targets, staged)
	}

	args := []string{"scan", "--json", "--experimental", "--config", rulePath}
	args = append(args, targets...)

	return r.runAndParse(ctx, args)
}

// DumpAST stages a code snippet and returns the engine's AST dump for it.
func (r *Runner) DumpAST(ctx context.Context, code, language string) (json.RawMessage, error) {
	if code == "" {
		return nil, invalidArgument("code must not be empty")
	}
	if err := validateLanguage(language); err != nil {
		return nil, err
	}

	stage, err := newStagingDir()
	if err != nil {
		return nil, err
	}
	defer stage.Cleanup()

	snippet, err := stage.WriteFile("snippet", code)
	if err != nil {
		return nil, err
	}

	args := []string{"--dump-ast", "--json", "--experimental", "--lang", language, snippet}
	return r.runAndParse(ctx, args)
}

// runAndParse executes the engine and decodes its structured stdout.
func (r *Runner) runAndParse(ctx context.Context, args []string) (json.RawMessage, error) {
	stdout, stderr, err := r.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &out); err != nil {
		return nil, &EngineError{
			Code:   ErrCodeOutputParse,
			Detail: fmt.Sprintf("engine produced malformed JSON: %v", err),
			Stderr: excerpt(stderr),
			Err:    err,
		}
	}
	return out, nil
}

// run spawns the engine with the constructed argument list and drains both
// output streams while it executes. Exit codes 0 and 1 are both success: 1
// is the engine's "findings present" convention, not a failure.
func (r *Runner) run(ctx context.Context, args []string) (stdout, stderr []byte, err error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		defer r.sem.Release(1)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.bin, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	// os/exec copies each stream in its own goroutine, so neither pipe can
	// stall the other by filling up.
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.WaitDelay = waitDelay

	r.logger.Debug("Running engine", "bin", r.bin, "args", strings.Join(args, " "))
	start := time.Now()
	runErr := cmd.Run()
	r.logger.LogPerformance("semgrep "+args[0], start)

	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if runErr == nil {
		return stdout, stderr, nil
	}

	switch {
	case ctx.Err() != nil:
		// Cancelled by the caller (stream closure): the process has been
		// killed, staged files are removed by the deferred cleanup.
		return nil, nil, ctx.Err()
	case runCtx.Err() == context.DeadlineExceeded:
		return nil, nil, &EngineError{
			Code:   ErrCodeTimeout,
			Detail: fmt.Sprintf("engine did not finish within %s", r.timeout),
			Stderr: excerpt(stderr),
			Err:    runErr,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		if code == 1 {
			// Findings present.
			return stdout, stderr, nil
		}
		return nil, nil, &EngineError{
			Code:   ErrCodeExec,
			Detail: fmt.Sprintf("engine exited with code %d", code),
			Stderr: excerpt(stderr),
			Err:    runErr,
		}
	}

	return nil, nil, &EngineError{
		Code:   ErrCodeSpawn,
		Detail: fmt.Sprintf("could not start %s", r.bin),
		Err:    runErr,
	}
}

// validateTarget rejects caller-controlled paths that the engine would parse
// as flags. This is a security boundary: a path like "--config=..." must
// never reach the argument list.
func validateTarget(p string) error {
	if strings.TrimSpace(p) == "" {
		return invalidArgument("target path must not be empty")
	}
	if strings.HasPrefix(p, "-") {
		return invalidArgument("target path %q must not start with a dash", p)
	}
	return nil
}

// validateRuleset applies the same flag-injection boundary to ruleset
// references. Empty is allowed (the reference is simply omitted).
func validateRuleset(ref string) error {
	if ref == "" {
		return nil
	}
	if strings.HasPrefix(ref, "-") {
		return invalidArgument("config %q must not start with a dash", ref)
	}
	return nil
}

func validateLanguage(lang string) error {
	if strings.TrimSpace(lang) == "" {
		return invalidArgument("language must not be empty")
	}
	if strings.HasPrefix(lang, "-") || strings.ContainsAny(lang, " \t\n") {
		return invalidArgument("language %q is not a valid language identifier", lang)
	}
	return nil
}

// validateRuleYAML checks the inline rule parses as YAML before any staging
// or subprocess work happens.
func validateRuleYAML(rule string) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(rule), &doc); err != nil {
		return invalidArgument("rule is not valid YAML: %v", err)
	}
	if _, ok := doc["rules"]; !ok {
		return invalidArgument("rule YAML must contain a top-level \"rules\" key")
	}
	return nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrExcerptLimit {
		return s[:stderrExcerptLimit] + "\n... [truncated]"
	}
	return s
}
