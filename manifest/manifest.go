// Package manifest declares a module tree in a YAML, TOML or JSON file and
// turns it into modtree descriptions through a catalog of module kinds.
//
// A manifest names every module, its kind, its dependencies and whether it
// is needed:
//
//	name: shop
//	modules:
//	  database:
//	    kind: sim
//	    params:
//	      delay: 20ms
//	  api:
//	    kind: sim
//	    deps: [database]
//	    needed: true
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/GoCodeAlone/modtree"
	"gopkg.in/yaml.v3"
)

// Supported manifest formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// Manifest is a declared module tree.
type Manifest struct {
	Name    string                `yaml:"name" toml:"name" json:"name"`
	Modules map[string]ModuleSpec `yaml:"modules" toml:"modules" json:"modules"`
}

// ModuleSpec declares one module. Kind selects the catalog factory that
// builds its operations; Params are passed to that factory untouched.
type ModuleSpec struct {
	Kind   string         `yaml:"kind" toml:"kind" json:"kind"`
	Deps   []string       `yaml:"deps,omitempty" toml:"deps,omitempty" json:"deps,omitempty"`
	Needed bool           `yaml:"needed,omitempty" toml:"needed,omitempty" json:"needed,omitempty"`
	Data   any            `yaml:"data,omitempty" toml:"data,omitempty" json:"data,omitempty"`
	Params map[string]any `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// Factory builds the operations of a module of one kind. The returned
// description's Deps, Needed and Data are replaced by the manifest's.
type Factory func(name string, spec ModuleSpec) (modtree.Description, error)

// Catalog maps module kinds to their factories.
type Catalog map[string]Factory

// Kinds returns the registered kinds in sorted order.
func (c Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c))
	for kind := range c {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// FormatFromPath picks the manifest format from the file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest in the given format.
func Parse(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if len(m.Modules) == 0 {
		return nil, ErrEmptyManifest
	}
	return &m, nil
}

// Descriptions builds tree descriptions for every declared module using
// catalog. It fails with ErrUnknownKind when a module's kind is not in the
// catalog. Dependency checks are left to modtree.New.
func (m *Manifest) Descriptions(catalog Catalog) (modtree.Descriptions, error) {
	descs := make(modtree.Descriptions, len(m.Modules))
	for name, spec := range m.Modules {
		factory, ok := catalog[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: module %s has kind %q (known kinds: %s)",
				ErrUnknownKind, name, spec.Kind, strings.Join(catalog.Kinds(), ", "))
		}

		desc, err := factory(name, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to build module %s: %w", name, err)
		}
		desc.Deps = spec.Deps
		desc.Needed = spec.Needed
		if spec.Data != nil {
			desc.Data = spec.Data
		}
		descs[name] = desc
	}
	return descs, nil
}

// ModuleNames returns the declared module names in sorted order.
func (m *Manifest) ModuleNames() []string {
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
