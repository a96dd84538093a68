package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/compiler"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modules.cue"), []byte("package catalog\n\n"+body), 0o644))
	return dir
}

func TestCatalogValidate(t *testing.T) {
	out, _, err := runCLI(t, "catalog", "validate", testCatalogDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog valid (7 modules, 2 editions)")
}

func TestCatalogValidateUsesCatalogFlag(t *testing.T) {
	out, _, err := runCLI(t, "catalog", "validate", "--catalog", testCatalogDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 7, resp.Data.Modules)
	assert.Empty(t, resp.Data.Warnings)
}

func TestCatalogValidateReportsErrors(t *testing.T) {
	dir := writeCatalog(t, `module: "XC-A": {
	module_name: "A"
	release: "1.0": requires: "XC-Missing": ""
}
`)

	out, _, err := runCLI(t, "catalog", "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrUnknownDependency, resp.Data.Errors[0].Code)
	assert.Equal(t, compiler.ErrUnknownDependency, resp.Error.Code)

	out, _, err = runCLI(t, "catalog", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "E110 module.XC-A.release.1.0.requires.XC-Missing: unknown module XC-Missing")
}

func TestCatalogValidateWarnsOnCycles(t *testing.T) {
	dir := writeCatalog(t, `module: "XC-A": release: "1.0": requires: "XC-B": ""
module: "XC-B": release: "1.0": requires: "XC-A": ""
`)

	out, _, err := runCLI(t, "catalog", "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog valid (2 modules, 0 editions)")
	assert.Contains(t, out, "warning:")
}

func TestCatalogValidateMissingDir(t *testing.T) {
	out, _, err := runCLI(t, "catalog", "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCatalogValidateNoDir(t *testing.T) {
	out, _, err := runCLI(t, "catalog", "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no catalog directory")
}
