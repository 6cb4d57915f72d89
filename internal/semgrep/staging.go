package semgrep

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// stagingDir is a request-scoped temporary directory for inline payloads
// (custom rules, code snippets) so the path-oriented engine can read them.
//
// Every job gets its own directory; nothing is ever shared between jobs, so
// two concurrent requests staging a file named "app.py" cannot collide.
// Cleanup removes the whole tree and is deferred by the caller on every exit
// path, including timeout and cancellation.
type stagingDir struct {
	root string
}

func newStagingDir() (*stagingDir, error) {
	root, err := os.MkdirTemp("", "sidero-job-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, &EngineError{Code: ErrCodeStaging, Detail: "create staging directory", Err: err}
	}
	return &stagingDir{root: root}, nil
}

// WriteFile stages content under the given relative name and returns the
// absolute path. The name is confined to the staging directory.
func (d *stagingDir) WriteFile(name, content string) (string, error) {
	name = filepath.Clean(name)
	if name == "" || name == "." || filepath.IsAbs(name) ||
		name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", invalidArgument("staged file name %q escapes the staging directory", name)
	}

	path := filepath.Join(d.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", &EngineError{Code: ErrCodeStaging, Detail: fmt.Sprintf("create parent for %s", name), Err: err}
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", &EngineError{Code: ErrCodeStaging, Detail: fmt.Sprintf("write %s", name), Err: err}
	}
	return path, nil
}

// Cleanup removes the staging directory and everything beneath it.
func (d *stagingDir) Cleanup() {
	if d == nil || d.root == "" {
		return
	}
	_ = os.RemoveAll(d.root)
}
