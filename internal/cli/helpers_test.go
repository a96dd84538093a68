package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

var testCatalogDir = filepath.Join("..", "..", "testdata", "catalog")

// runCLI executes the root command with args and returns stdout, stderr
// and the command error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// storeEnv points commands at a fresh database over the test catalog.
type storeEnv struct {
	t  *testing.T
	db string
}

func newStoreEnv(t *testing.T) *storeEnv {
	t.Helper()
	return &storeEnv{t: t, db: filepath.Join(t.TempDir(), "storebus.db")}
}

func (e *storeEnv) args(args ...string) []string {
	return slices.Concat(args, []string{"--db", e.db, "--catalog", testCatalogDir})
}

// run executes a command and requires it to succeed.
func (e *storeEnv) run(args ...string) string {
	e.t.Helper()
	out, errOut, err := runCLI(e.t, e.args(args...)...)
	require.NoError(e.t, err, "stdout: %s\nstderr: %s", out, errOut)
	return out
}

// fail executes a command in json format and requires it to fail,
// returning the error response and exit code.
func (e *storeEnv) fail(args ...string) (*CLIError, int) {
	e.t.Helper()
	out, _, err := runCLI(e.t, e.args(slices.Concat(args, []string{"--format", "json"})...)...)
	require.Error(e.t, err)

	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "error", resp.Status)
	require.NotNil(e.t, resp.Error)
	return resp.Error, GetExitCode(err)
}

// decode runs a json command and decodes its data payload into v.
func (e *storeEnv) decode(v any, args ...string) {
	e.t.Helper()
	out := e.run(slices.Concat(args, []string{"--format", "json"})...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "ok", resp.Status)
	require.NoError(e.t, json.Unmarshal(resp.Data, v), string(resp.Data))
}
