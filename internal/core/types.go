package core

// Manifest is the package manifest document: the root package's own
// package.json-equivalent, and the shape written into every installed
// dependency's copy once resolution metadata has been injected.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main,omitempty"`

	Bin     map[string]string `json:"bin,omitempty"`
	Scripts map[string]string `json:"scripts,omitempty"`

	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`

	Remotes map[string]string `json:"remotes,omitempty"`
	Files   []string          `json:"files,omitempty"`

	BundleDependencies  []string `json:"bundleDependencies,omitempty"`
	BundledDependencies []string `json:"bundledDependencies,omitempty"`

	License string            `json:"license,omitempty"`
	Engines map[string]string `json:"engines,omitempty"`

	// Injected on install; absent from a hand-authored manifest.
	From     string `json:"_from,omitempty"`
	Resolved string `json:"_resolved,omitempty"`
	Commit   string `json:"_commit,omitempty"`
	Branch   string `json:"_branch,omitempty"`
}

// Bundled reports whether name is listed as a bundled dependency under
// either the current or legacy manifest key.
func (m *Manifest) Bundled(name string) bool {
	for _, n := range m.BundleDependencies {
		if n == name {
			return true
		}
	}
	for _, n := range m.BundledDependencies {
		if n == name {
			return true
		}
	}
	return false
}

// HasBundledDeps reports whether the manifest declares any bundled
// dependencies at all, which the File Filter needs to decide whether to
// keep node_modules/ in the top-level keep layer.
func (m *Manifest) HasBundledDeps() bool {
	return len(m.BundleDependencies) > 0 || len(m.BundledDependencies) > 0
}

// ResolvedRemote is the output of the Source URL Resolver: exactly one
// of VersionRange or Branch is set after resolution. GitURL is empty
// only for a bare, legacy version-only source.
type ResolvedRemote struct {
	GitURL       string
	VersionRange string
	Branch       string
}

// IsBareVersion reports whether this remote never had a git_url, i.e. it
// is a legacy version-only Source String that must error at install time
// if ever reached (RemoteMissingError).
func (r ResolvedRemote) IsBareVersion() bool {
	return r.GitURL == ""
}

// TagInfo describes one tag in a Remote Tag View: annotated tags carry
// both an annotated object id and the commit id they point at; lightweight
// tags carry only the commit id.
type TagInfo struct {
	Name         string
	AnnotatedOID string // empty for a lightweight tag
	CommitOID    string
}

// Annotated reports whether this tag is an annotated tag object.
func (t TagInfo) Annotated() bool {
	return t.AnnotatedOID != ""
}

// CacheOID returns the object id that should address this tag's Verified
// Cache Entry: the annotated tag OID when present, else the commit OID.
func (t TagInfo) CacheOID() string {
	if t.AnnotatedOID != "" {
		return t.AnnotatedOID
	}
	return t.CommitOID
}

// BranchView is the result of a list_branches call: the full set of
// branch tips plus which one HEAD resolves to.
type BranchView struct {
	Branches map[string]string // name -> commit oid
	Head     string            // branch name HEAD points at, if symbolic
}
