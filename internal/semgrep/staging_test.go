package semgrep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingDir(t *testing.T) {
	t.Run("writes and cleans up", func(t *testing.T) {
		d, err := newStagingDir()
		require.NoError(t, err)

		path, err := d.WriteFile("app.py", "print(1)\n")
		require.NoError(t, err)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "print(1)\n", string(content))

		d.Cleanup()
		assert.NoDirExists(t, d.root)
	})

	t.Run("nested names allowed", func(t *testing.T) {
		d, err := newStagingDir()
		require.NoError(t, err)
		defer d.Cleanup()

		path, err := d.WriteFile(filepath.Join("src", "pkg", "main.go"), "package main")
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("unique per job", func(t *testing.T) {
		a, err := newStagingDir()
		require.NoError(t, err)
		defer a.Cleanup()
		b, err := newStagingDir()
		require.NoError(t, err)
		defer b.Cleanup()

		assert.NotEqual(t, a.root, b.root)

		pa, err := a.WriteFile("same.py", "a")
		require.NoError(t, err)
		pb, err := b.WriteFile("same.py", "b")
		require.NoError(t, err)
		assert.NotEqual(t, pa, pb)
	})

	t.Run("escaping names rejected", func(t *testing.T) {
		d, err := newStagingDir()
		require.NoError(t, err)
		defer d.Cleanup()

		for _, name := range []string{
			"",
			".",
			"..",
			"../outside.py",
			"a/../../outside.py",
			"/etc/passwd",
		} {
			_, err := d.WriteFile(name, "x")
			assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err), "name %q", name)
		}
	})

	t.Run("nil cleanup is a no-op", func(t *testing.T) {
		var d *stagingDir
		d.Cleanup()
	})
}
