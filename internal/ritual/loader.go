package ritual

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var builtinFS embed.FS

// ParseDefinitionYAML decodes a ritual definition from YAML bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("ritual: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("ritual: decode definition: %w", err)
	}
	return def.Normalized()
}

// LoadDefinitionReader reads definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("ritual: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a definition from an explicit file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("ritual: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("ritual: %s: %w", path, parseErr)
	}
	return def, nil
}

// LoadDefinitionDir loads every *.yaml and *.yml file in dir. A missing
// directory yields no definitions.
func LoadDefinitionDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ritual: read dir %s: %w", dir, err)
	}
	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Builtins returns the definitions shipped with the binary.
func Builtins() ([]Definition, error) {
	var defs []Definition
	err := fs.WalkDir(builtinFS, "definitions", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		def, err := ParseDefinitionYAML(data)
		if err != nil {
			return fmt.Errorf("ritual: builtin %s: %w", path, err)
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Library indexes definitions by ID.
type Library struct {
	defs map[string]Definition
}

// NewLibrary builds a library. Later definitions replace earlier ones with
// the same ID, so directory overrides win over builtins.
func NewLibrary(defs ...Definition) *Library {
	lib := &Library{defs: map[string]Definition{}}
	for _, def := range defs {
		lib.defs[def.ID] = def.Clone()
	}
	return lib
}

// LoadLibrary returns the builtins plus any definitions found in dir.
func LoadLibrary(dir string) (*Library, error) {
	defs, err := Builtins()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		extra, err := LoadDefinitionDir(dir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, extra...)
	}
	return NewLibrary(defs...), nil
}

// Get looks up a definition by ID.
func (l *Library) Get(id string) (Definition, bool) {
	if l == nil {
		return Definition{}, false
	}
	def, ok := l.defs[id]
	if !ok {
		return Definition{}, false
	}
	return def.Clone(), true
}

// List returns every definition sorted by kind and ID.
func (l *Library) List() []Definition {
	if l == nil {
		return nil
	}
	out := make([]Definition, 0, len(l.defs))
	for _, def := range l.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}
