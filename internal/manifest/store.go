// Package manifest implements the Manifest Store: reading and writing
// the package manifest document, and injecting resolution metadata into
// installed copies.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/git-pkgs/gpk/internal/core"
)

const fileName = "package.json"

// Read reads and parses the manifest in dir. A missing file is handled
// locally as "not present" (nil, nil) rather than an error; every other
// failure is an IoError.
func Read(dir string) (*core.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &core.IoError{Op: "read", Path: dir, Err: err}
	}
	var m core.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &core.IoError{Op: "parse", Path: dir, Err: err}
	}
	return &m, nil
}

// Locate climbs from start toward the filesystem root looking for a
// manifest, stopping at the first directory that has one. If walk is
// false, only start itself is checked. Returns ManifestMissingError if
// the filesystem root is reached with no manifest found.
func Locate(start string, walk bool) (string, *core.Manifest, error) {
	dir := start
	for {
		m, err := Read(dir)
		if err != nil {
			return "", nil, err
		}
		if m != nil {
			return dir, m, nil
		}
		if !walk {
			return "", nil, &core.ManifestMissingError{StartDir: start}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, &core.ManifestMissingError{StartDir: start}
		}
		dir = parent
	}
}

// Write pretty-prints manifest as 2-space-indented JSON with a trailing
// newline.
func Write(dir string, m *core.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &core.IoError{Op: "marshal", Path: dir, Err: err}
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o644); err != nil {
		return &core.IoError{Op: "write", Path: dir, Err: err}
	}
	return nil
}

// InjectedMeta is the resolution metadata inject_meta writes into an
// installed copy's manifest.
type InjectedMeta struct {
	From    string
	GitURL  string
	Commit  string
	Branch  string // optional
	License string // optional, validated but never rewritten
}

// InjectMeta reads the manifest at dir, stamps it with resolution
// metadata, validates an optional license expression (logging, not
// failing, on an invalid one), and writes it back.
func InjectMeta(dir string, meta InjectedMeta, warn func(string)) error {
	m, err := Read(dir)
	if err != nil {
		return err
	}
	if m == nil {
		return &core.ManifestMissingError{StartDir: dir}
	}

	m.From = meta.From
	m.Resolved = "git+" + meta.GitURL + "#" + meta.Commit
	m.Commit = meta.Commit
	m.Branch = meta.Branch

	if meta.License != "" && warn != nil {
		if err := ValidateLicense(meta.License); err != nil {
			warn(fmt.Sprintf("invalid SPDX license expression %q: %v", meta.License, err))
		}
	}

	return Write(dir, m)
}

// AddDeps merges deps into m.Dependencies. Lexicographic ordering of
// the written map is implicit: encoding/json marshals map keys in
// sorted order.
func AddDeps(m *core.Manifest, deps map[string]string) {
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string, len(deps))
	}
	for name, source := range deps {
		m.Dependencies[name] = source
	}
}

// RemoveDeps deletes names from both the dependencies and
// devDependencies maps.
func RemoveDeps(m *core.Manifest, names []string) {
	for _, name := range names {
		delete(m.Dependencies, name)
		delete(m.DevDependencies, name)
	}
}

// MergedDependencies combines dependencies with devDependencies unless
// production is set, in deterministic lexicographic order, erroring if a
// name appears in both (DuplicateDependencyError).
func MergedDependencies(m *core.Manifest, production bool) ([]string, map[string]string, error) {
	merged := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for name, src := range m.Dependencies {
		merged[name] = src
	}
	if !production {
		for name, src := range m.DevDependencies {
			if _, dup := m.Dependencies[name]; dup {
				return nil, nil, &core.DuplicateDependencyError{Name: name}
			}
			merged[name] = src
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, merged, nil
}
