package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// LoadMode controls how errors are handled while compiling a catalog.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeCompile     = "E007"
)

// LoadResult is a compiled catalog plus what it was built from.
type LoadResult struct {
	Catalog   *catalog.Catalog
	Modules   []ir.Module // every release, grouped by id
	FileCount int
}

// LoadError is an error raised while loading a catalog directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads every CUE file of the package in dir and compiles it into
// a catalog.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	res, errs := CompileCatalog(value, mode)
	if res != nil {
		res.FileCount = len(files)
	}
	return res, errs
}

// CompileCatalog compiles the module and edition entries of a built CUE
// value. The result is non-nil unless the value itself is broken.
func CompileCatalog(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	res := &LoadResult{
		Catalog: &catalog.Catalog{
			Marketplace: catalog.NewMemory(),
			Editions:    catalog.Editions{},
		},
	}
	var errs []error

	if modsVal := value.LookupPath(cue.ParsePath("module")); modsVal.Exists() {
		iter, err := modsVal.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating modules: %v", err)})
			if mode == LoadModeFailFast {
				return res, errs
			}
		} else {
			for iter.Next() {
				releases, err := CompileModule(iter.Value())
				if err != nil {
					errs = append(errs, convertCompileError(err, "module."+iter.Selector().Unquoted()))
					if mode == LoadModeFailFast {
						return res, errs
					}
					continue
				}
				for _, m := range releases {
					res.Catalog.Marketplace.Put(m)
				}
				res.Modules = append(res.Modules, releases...)
			}
		}
	}

	if edsVal := value.LookupPath(cue.ParsePath("edition")); edsVal.Exists() {
		iter, err := edsVal.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating editions: %v", err)})
			if mode == LoadModeFailFast {
				return res, errs
			}
		} else {
			for iter.Next() {
				ed, err := CompileEdition(iter.Value())
				if err != nil {
					errs = append(errs, convertCompileError(err, "edition."+iter.Selector().Unquoted()))
					if mode == LoadModeFailFast {
						return res, errs
					}
					continue
				}
				res.Catalog.Editions[ed.Name] = ed
			}
		}
	}

	if len(res.Modules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no modules found in catalog"})
	}
	return res, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeCompile, Message: ce.Field + ": " + ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", context, err)}
}
