// Package mountplan reduces a collection of path arguments to the minimal
// set of non-overlapping bind mounts needed to expose them inside a
// container, and resolves each path against its covering mount. Planning is
// deterministic: the same inputs in the same order always produce the same
// mounts and the same container targets, so rewritten command lines are
// reproducible.
package mountplan

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redock/redock/dockpath"
)

// Base is the fixed container-side prefix under which planned mounts are
// placed. Extra mounts supplied by the caller may live anywhere.
const Base = "/redock"

// Spec is one host-to-container bind mount. HostRoots of the specs produced
// by Plan are pairwise non-overlapping: overlapping bind mounts shadow each
// other in undefined ways, so they are consolidated instead.
type Spec struct {
	HostRoot        string
	ContainerTarget string
	ReadOnly        bool
}

// Mode returns the runtime bind mode string for the spec.
func (s Spec) Mode() string {
	if s.ReadOnly {
		return "ro"
	}
	return "rw"
}

// CollisionError reports two unrelated host roots mapped to the same
// container target. Target derivation disambiguates names, so a collision
// indicates a bug in the planner rather than bad input.
type CollisionError struct {
	Target string
	HostA  string
	HostB  string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("mount collision: %q and %q both map to container path %q",
		e.HostA, e.HostB, e.Target)
}

type candidate struct {
	root     string
	writable bool
	depth    int
	order    int // first appearance, tie-break for equal depths
}

// Plan computes the mount set covering every input path and resolves each
// path in place. Paths need not exist on the host; a nonexistent path is
// planned through its parent directory. Write access requested by any path
// propagates to the whole covering mount.
func Plan(paths []*dockpath.Path) ([]Spec, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	// Collect candidate roots, merging duplicates.
	byRoot := make(map[string]*candidate)
	var cands []*candidate
	for _, p := range paths {
		root := p.MountRootCandidate()
		if c, ok := byRoot[root]; ok {
			c.writable = c.writable || p.Writable()
			continue
		}
		c := &candidate{
			root:     root,
			writable: p.Writable(),
			depth:    pathDepth(root),
			order:    len(cands),
		}
		byRoot[root] = c
		cands = append(cands, c)
	}

	// Shallowest roots first; first appearance breaks ties so planning is
	// reproducible for the same argument order.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].depth != cands[j].depth {
			return cands[i].depth < cands[j].depth
		}
		return cands[i].order < cands[j].order
	})

	// Greedy cover: accept a candidate unless an already-accepted root is
	// an ancestor of it, in which case its mode merges into the cover.
	var specs []*Spec
	taken := make(map[string]string) // container target -> host root
	for _, c := range cands {
		if covering := findCover(specs, c.root); covering != nil {
			if c.writable {
				covering.ReadOnly = false
			}
			continue
		}
		target := deriveTarget(c.root, taken)
		taken[target] = c.root
		specs = append(specs, &Spec{
			HostRoot:        c.root,
			ContainerTarget: target,
			ReadOnly:        !c.writable,
		})
	}

	// Resolve every path against its (unique) covering mount.
	for _, p := range paths {
		covering := findCover(specs, p.MountRootCandidate())
		if covering == nil {
			return nil, fmt.Errorf("no mount covers %q", p.HostPath())
		}
		if err := p.Resolve(covering.HostRoot, covering.ContainerTarget); err != nil {
			return nil, err
		}
	}

	// Guard the non-shadowing invariant rather than trusting derivation.
	seen := make(map[string]string, len(specs))
	out := make([]Spec, len(specs))
	for i, s := range specs {
		if prev, ok := seen[s.ContainerTarget]; ok {
			return nil, &CollisionError{Target: s.ContainerTarget, HostA: prev, HostB: s.HostRoot}
		}
		seen[s.ContainerTarget] = s.HostRoot
		out[i] = *s
	}
	return out, nil
}

// findCover returns the accepted spec whose root is an ancestor-or-equal of
// root, nil if none. Accepted roots never overlap, so at most one matches.
func findCover(specs []*Spec, root string) *Spec {
	for _, s := range specs {
		if ancestorOrEqual(s.HostRoot, root) {
			return s
		}
	}
	return nil
}

// ancestorOrEqual reports whether ancestor covers p (both cleaned absolute
// host paths).
func ancestorOrEqual(ancestor, p string) bool {
	if ancestor == p {
		return true
	}
	sep := string(filepath.Separator)
	if ancestor == sep || strings.HasSuffix(ancestor, sep) {
		return strings.HasPrefix(p, ancestor)
	}
	return strings.HasPrefix(p, ancestor+sep)
}

func pathDepth(p string) int {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// deriveTarget maps a host root to a stable container target under Base,
// named after the root's base name with an index suffix when the name is
// already taken by an unrelated root.
func deriveTarget(root string, taken map[string]string) string {
	name := sanitizeName(filepath.Base(root))
	target := path.Join(Base, name)
	for n := 2; ; n++ {
		if _, ok := taken[target]; !ok {
			return target
		}
		target = path.Join(Base, fmt.Sprintf("%s-%d", name, n))
	}
}

// sanitizeName keeps container target names to a portable character set.
func sanitizeName(name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "host"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
