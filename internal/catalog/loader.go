package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk catalog shape shared by YAML and CUE files.
// CUE decoding honours the json tags, YAML the yaml tags.
type fileCatalog struct {
	Tables []fileTable `json:"tables" yaml:"tables"`
}

type fileTable struct {
	Namespace  string       `json:"namespace" yaml:"namespace"`
	Name       string       `json:"name" yaml:"name"`
	PrimaryKey []string     `json:"primary_key" yaml:"primary_key"`
	Columns    []fileColumn `json:"columns" yaml:"columns"`
}

type fileColumn struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// LoadError represents a failure to read or decode a catalog file.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadFile reads a catalog from a .yaml, .yml or .cue file.
// The namespace defaults to "main" when a table omits it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "read catalog", Err: err}
	}

	var fc fileCatalog
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		fc, err = decodeYAML(data)
	case ".cue":
		fc, err = decodeCUE(path, data)
	default:
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unsupported catalog extension %q (want .yaml, .yml or .cue)", ext)}
	}
	if err != nil {
		return nil, &LoadError{Path: path, Message: "decode catalog", Err: err}
	}

	schemas, err := fc.schemas()
	if err != nil {
		return nil, &LoadError{Path: path, Message: "invalid catalog", Err: err}
	}
	cat, err := New(schemas...)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "invalid catalog", Err: err}
	}
	return cat, nil
}

func decodeYAML(data []byte) (fileCatalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileCatalog{}, err
	}
	return fc, nil
}

func decodeCUE(path string, data []byte) (fileCatalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fileCatalog{}, fmt.Errorf("building CUE value: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fileCatalog{}, fmt.Errorf("validating CUE value: %w", err)
	}

	var fc fileCatalog
	if err := value.Decode(&fc); err != nil {
		return fileCatalog{}, fmt.Errorf("decoding CUE value: %w", err)
	}
	return fc, nil
}

func (fc fileCatalog) schemas() ([]TableSchema, error) {
	if len(fc.Tables) == 0 {
		return nil, fmt.Errorf("no tables declared")
	}

	out := make([]TableSchema, 0, len(fc.Tables))
	for _, ft := range fc.Tables {
		ns := ft.Namespace
		if ns == "" {
			ns = "main"
		}
		schema := TableSchema{
			Namespace:  ns,
			Name:       ft.Name,
			PrimaryKey: ft.PrimaryKey,
		}
		for _, fcol := range ft.Columns {
			col := ColumnDescriptor{
				Name:     fcol.Name,
				Type:     ColumnType(strings.ToUpper(strings.TrimSpace(fcol.Type))),
				Nullable: fcol.Nullable,
			}
			if fcol.Default != nil {
				v, err := Literal(fcol.Default)
				if err != nil {
					return nil, fmt.Errorf("table %s.%s column %q: %w", ns, ft.Name, fcol.Name, err)
				}
				col.Default = v
			}
			schema.Columns = append(schema.Columns, col)
		}
		out = append(out, schema)
	}
	return out, nil
}
