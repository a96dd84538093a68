package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

func catalogDir() string {
	return filepath.Join("..", "..", "testdata", "catalog")
}

func TestLoadDirTestdata(t *testing.T) {
	res, errs := LoadDir(catalogDir(), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, res)

	assert.Equal(t, 2, res.FileCount)
	assert.Equal(t, 7, res.Catalog.Marketplace.Len())
	assert.Equal(t, []string{"Business", "Free"}, res.Catalog.Editions.Names())

	ctx := context.Background()
	latest, ok, err := catalog.Latest(ctx, res.Catalog.Marketplace, "XC-Reviews")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1", latest.Version)
	assert.Equal(t, []ir.Dependency{{ID: "CDev-Core", MinVersion: "5.4.1"}}, latest.Dependencies)

	stripe, ok, err := catalog.Latest(ctx, res.Catalog.Marketplace, "XC-Stripe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, stripe.Licensed)

	assert.Empty(t, ValidateCatalog(res.Modules, res.Catalog.Editions))
	assert.Empty(t, AnalyzeCycles(res.Modules))
}

func TestLoadDirNotFound(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadDirNoFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("no cue here"), 0o644))

	_, errs := LoadDir(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestLoadDirSyntaxError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte("package test\nmodule: {"), 0o644))

	_, errs := LoadDir(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Contains(t, []string{ErrCodeLoadFailed, ErrCodeBuildFailed}, le.Code)
}

func TestCompileCatalogCollectAll(t *testing.T) {
	v := cuecontext.New().CompileString(`
		module: "XC-Good": release: "1.0": {}
		module: "XC-NoReleases": {}
		module: "XC-AlsoBad": {}
		edition: Broken: {}
	`)

	res, errs := CompileCatalog(v, LoadModeCollectAll)
	require.NotNil(t, res)
	assert.Len(t, errs, 3)
	assert.Equal(t, 1, res.Catalog.Marketplace.Len())
	assert.Empty(t, res.Catalog.Editions)
}

func TestCompileCatalogFailFast(t *testing.T) {
	v := cuecontext.New().CompileString(`
		module: "XC-NoReleases": {}
		module: "XC-AlsoBad": {}
	`)

	_, errs := CompileCatalog(v, LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeCompile, le.Code)
}

func TestCompileCatalogEmpty(t *testing.T) {
	v := cuecontext.New().CompileString(`edition: Free: modules: []`)

	_, errs := CompileCatalog(v, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no modules found")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.cue"), []byte("package test"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notcue.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.cue"), []byte("package test"), 0o644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
