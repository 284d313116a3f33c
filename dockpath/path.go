// Package dockpath represents filesystem paths that live in two syntaxes at
// once: the host path an argument was spelled as, and a canonical POSIX path
// under a bind mount inside a container. A Path starts out unresolved; mount
// planning assigns it a mount root and container target, after which
// MountPath returns the in-container representation.
package dockpath

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind declares how a path argument is used inside the container.
type Kind int

const (
	// ReadOnly marks an input path. Its covering mount stays read-only
	// unless another path under the same root needs write access.
	ReadOnly Kind = iota
	// Writable marks an output path. Its covering mount is bind-mounted
	// read-write.
	Writable
)

func (k Kind) String() string {
	if k == Writable {
		return "writable"
	}
	return "read-only"
}

// UnresolvedError reports use of a path's container representation before
// mount planning assigned it a mount root. It always indicates a bug in the
// calling code, not bad user input.
type UnresolvedError struct {
	HostPath string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("path %q has no mount root assigned yet", e.HostPath)
}

// Path is a path value that knows both its host representation and, once
// resolved, its in-container one. It wraps a plain host path instead of
// extending a path type; only the operations the argument boundary needs
// are exposed. Pure data: the only filesystem access is a stat to decide
// whether the path is an existing directory.
type Path struct {
	host string // absolute, cleaned, host syntax
	raw  string // as supplied, kept for diagnostics
	kind Kind

	mountRoot string // host-side root of the covering mount, empty until resolved
	mountRel  string // POSIX path of host relative to mountRoot
	target    string // container target of the covering mount
}

// New builds a Path from a host-syntax string. A leading ~ is expanded,
// relative paths are made absolute against the current directory, and
// symlinks are resolved where the path exists. The path does not have to
// exist: output paths may only be created inside the container.
func New(raw string, kind Kind) (*Path, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}
	host, err := Expand(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", raw, err)
	}
	return &Path{host: host, raw: raw, kind: kind}, nil
}

// HostPath returns the canonical absolute host path.
func (p *Path) HostPath() string { return p.host }

// Raw returns the path as it was originally supplied.
func (p *Path) Raw() string { return p.raw }

// Kind returns the declared usage of the path.
func (p *Path) Kind() Kind { return p.kind }

// Writable reports whether the covering mount must permit writes.
func (p *Path) Writable() bool { return p.kind == Writable }

// Resolved reports whether a mount root has been assigned.
func (p *Path) Resolved() bool { return p.mountRoot != "" }

// MountRootCandidate returns the host directory that would be bind-mounted
// to cover this path: the path itself when it is an existing directory,
// otherwise its parent. A path that does not exist yet is assumed to be a
// file to be created, so its parent is mounted.
func (p *Path) MountRootCandidate() string {
	if info, err := os.Stat(p.host); err == nil && info.IsDir() {
		return p.host
	}
	return filepath.Dir(p.host)
}

// Resolve assigns the covering mount. root must be an ancestor of the host
// path or the host path itself; target is the mount's container-side path.
// A Path is resolved at most once, during mount planning.
func (p *Path) Resolve(root, target string) error {
	rel, err := filepath.Rel(root, p.host)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("mount root %q does not cover %q", root, p.host)
	}
	if rel == "." {
		rel = ""
	}
	p.mountRoot = root
	p.mountRel = filepath.ToSlash(rel)
	p.target = target
	return nil
}

// MountRoot returns the assigned host-side mount root, empty if unresolved.
func (p *Path) MountRoot() string { return p.mountRoot }

// MountPath returns the in-container POSIX path of this value. It fails
// with an UnresolvedError before mount planning has run.
func (p *Path) MountPath() (string, error) {
	if !p.Resolved() {
		return "", &UnresolvedError{HostPath: p.host}
	}
	if p.mountRel == "" {
		return p.target, nil
	}
	return path.Join(p.target, p.mountRel), nil
}

// Equal reports whether two Paths refer to the same host location,
// regardless of how they were spelled.
func (p *Path) Equal(o *Path) bool {
	return o != nil && p.host == o.host
}

// String returns the host path. Diagnostic use only; the in-container
// representation comes from MountPath.
func (p *Path) String() string { return p.host }
