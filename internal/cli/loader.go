package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ignite/internal/compiler"
	"github.com/roach88/ignite/internal/module"
)

// LoadError represents an error that occurred while loading a module.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeNoModule        = "E101" // No module declared
	ErrCodeAmbiguousModule = "E102" // Several modules and none selected
	ErrCodeInvalidModule   = "E103" // Module failed to compile
)

// LoadModule loads the CUE package in dir and compiles the module called
// name. An empty name selects the only module declared.
func LoadModule(dir, name string) (*module.Module, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("module directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing module directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	modules, err := moduleValues(value)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.name)
	}

	var selected cue.Value
	switch {
	case name != "":
		i := slices.Index(names, name)
		if i < 0 {
			return nil, &LoadError{Code: ErrCodeNoModule, Message: fmt.Sprintf("module %q not found (declared: %v)", name, names)}
		}
		selected = modules[i].value
	case len(modules) == 1:
		selected = modules[0].value
	default:
		return nil, &LoadError{Code: ErrCodeAmbiguousModule, Message: fmt.Sprintf("%d modules declared, select one with --module: %v", len(modules), names)}
	}

	m, err := compiler.CompileModule(selected)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return m, nil
}

type namedValue struct {
	name  string
	value cue.Value
}

func moduleValues(root cue.Value) ([]namedValue, error) {
	modulesVal := root.LookupPath(cue.ParsePath("module"))
	if !modulesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoModule, Message: "no module declared"}
	}
	iter, err := modulesVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating modules: %v", err)}
	}
	var out []namedValue
	for iter.Next() {
		out = append(out, namedValue{name: iter.Selector().Unquoted(), value: iter.Value()})
	}
	if len(out) == 0 {
		return nil, &LoadError{Code: ErrCodeNoModule, Message: "no module declared"}
	}
	return out, nil
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

// convertCompileError converts a compiler or structural error to a LoadError
// with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeInvalidModule,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeInvalidModule, Message: err.Error()}
}
