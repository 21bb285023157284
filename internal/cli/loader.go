package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/tably/tably/internal/shape"
)

// TableSchema is one declared table: a name and its row record.
type TableSchema struct {
	Name   string
	Schema shape.Record
}

// LoadResult contains the table schemas loaded from CUE.
type LoadResult struct {
	Tables    []TableSchema
	FileCount int
}

// LoadError is an error raised while loading schema definitions.
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

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // generic/unknown error
	ErrCodeScanError     = "E002" // directory scan error
	ErrCodeNoFiles       = "E003" // no CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeNoTables      = "E007" // no table declarations
	ErrCodeBadSchema     = "E101" // record literal does not parse
	ErrCodeBadQuery      = "E201" // query file does not parse
	ErrCodeBadExpression = "E202" // pipeline does not build
	ErrCodeQueryFailed   = "E203" // evaluation failed
)

// LoadSchemas loads table declarations from a CUE file or directory.
// Declarations live under a top-level "tables" struct mapping table
// names to record literals:
//
//	tables: accounts: "{name: string, amount: int}"
func LoadSchemas(path string) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema path: %v", err)}}
	}

	var cueFiles []string
	cfg := &load.Config{}
	args := []string{"."}
	if info.IsDir() {
		cueFiles, err = findCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		cfg.Dir = path
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
		}
		cueFiles = []string{path}
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	var errs []error

	tablesVal := value.LookupPath(cue.ParsePath("tables"))
	if !tablesVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoTables, Message: "no top-level \"tables\" declaration found"}}
	}
	iter, iterErr := tablesVal.Fields()
	if iterErr != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating tables: %v", iterErr)}}
	}
	for iter.Next() {
		name := iter.Label()
		literal, strErr := iter.Value().String()
		if strErr != nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeBadSchema,
				Message: fmt.Sprintf("table %q: schema must be a record literal string: %v", name, strErr),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		rec, parseErr := shape.ParseRecord(literal)
		if parseErr != nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeBadSchema,
				Message: fmt.Sprintf("table %q: %v", name, parseErr),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		result.Tables = append(result.Tables, TableSchema{Name: name, Schema: rec})
	}

	if len(result.Tables) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTables, Message: "no tables declared"})
	}
	return result, errs
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
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
