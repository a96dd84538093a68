package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	harnessFixtures = filepath.Join("..", "harness", "testdata", "fixtures")
	harnessGolden   = filepath.Join("..", "harness", "testdata", "golden")
)

func TestTestCommandRunsFixtures(t *testing.T) {
	out, _, err := runCLI(t, "test", harnessFixtures, "--golden", harnessGolden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 remove-cascades")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, _, err := runCLI(t, "test", harnessFixtures, "--filter", "remove-*", "--format", "json")
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
}

func TestTestCommandUpdateGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")

	_, _, err := runCLI(t, "test", harnessFixtures, "--golden", golden, "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(golden, "remove-cascades.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(harnessGolden, "remove-cascades.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(golden, "remove-cascades.golden"), []byte("{}"), 0o644))
	out, _, err := runCLI(t, "test", harnessFixtures, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "\u2717 remove-cascades")
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommandFailingFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := `name: wrong-expectation
description: "asserts a transition the builder never makes"
installed:
  - { id: XC-A, version: "1.0" }
steps:
  - units:
      - { id: XC-A, action: disable }
assertions:
  - { type: transition, module: XC-A, kind: remove }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(fixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, _, err := runCLI(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Fixtures, 2)

	broken, wrong := resp.Data.Fixtures[0], resp.Data.Fixtures[1]
	assert.Equal(t, "broken", broken.Name)
	assert.Contains(t, broken.Errors[0], "failed to load fixture")
	assert.Equal(t, "wrong-expectation", wrong.Name)
	assert.False(t, wrong.Pass)
	assert.Contains(t, wrong.Errors[0], "Assertion failed: transition")
}

func TestTestCommandErrors(t *testing.T) {
	_, _, err := runCLI(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = runCLI(t, "test", t.TempDir(), "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err := runCLI(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No fixtures found.")
}
