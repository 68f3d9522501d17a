package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config file rooted in a temp data directory.
func writeTestConfig(t *testing.T, extra map[string]interface{}) (string, string) {
	t.Helper()
	dir := t.TempDir()

	doc := map[string]interface{}{
		"data_dir": dir,
		"gateway":  map[string]interface{}{"enabled": false},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "kodok.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, dir
}

// execute runs the root command with args and returns combined output.
// Cobra keeps flag values between runs, so sticky flags are reset first.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	resetFlags(cmd)

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

func resetFlags(cmd *cobra.Command) {
	for _, name := range []string{"help", "version"} {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			_ = flag.Value.Set("false")
			flag.Changed = false
		}
	}
	if flag := cmd.PersistentFlags().Lookup("log-level"); flag != nil {
		_ = flag.Value.Set("info")
		flag.Changed = false
	}
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
