package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// scenarioFs returns an in-memory filesystem holding the named harness
// testdata scenarios under /scenarios.
func scenarioFs(t *testing.T, names ...string) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/scenarios", 0o755))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("..", "harness", "testdata", name))
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(fsys, "/scenarios/"+filepath.Base(name), data, 0o644))
	}
	return fsys
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
