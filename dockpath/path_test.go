package dockpath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustNew(t *testing.T, raw string, kind Kind) *Path {
	t.Helper()
	p, err := New(raw, kind)
	if err != nil {
		t.Fatalf("New(%q): %v", raw, err)
	}
	return p
}

func TestNewMakesAbsolute(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldwd) })

	p := mustNew(t, "sub/file.txt", Writable)
	if !filepath.IsAbs(p.HostPath()) {
		t.Errorf("expected absolute host path, got %q", p.HostPath())
	}
	if p.Raw() != "sub/file.txt" {
		t.Errorf("expected raw spelling preserved, got %q", p.Raw())
	}
}

func TestEqualIgnoresSpelling(t *testing.T) {
	dir := t.TempDir()

	a := mustNew(t, filepath.Join(dir, "sub", "..", "file.txt"), ReadOnly)
	b := mustNew(t, filepath.Join(dir, "file.txt"), Writable)
	if !a.Equal(b) {
		t.Errorf("expected %q and %q to be equal", a.HostPath(), b.HostPath())
	}

	c := mustNew(t, filepath.Join(dir, "other.txt"), ReadOnly)
	if a.Equal(c) {
		t.Errorf("expected %q and %q to differ", a.HostPath(), c.HostPath())
	}
	if a.Equal(nil) {
		t.Error("expected inequality with nil")
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New("", ReadOnly); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestMountPathBeforeResolution(t *testing.T) {
	p := mustNew(t, filepath.Join(t.TempDir(), "out.csv"), Writable)

	_, err := p.MountPath()
	if err == nil {
		t.Fatal("expected error before resolution")
	}
	var unresolved *UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedError, got %T: %v", err, err)
	}
	if unresolved.HostPath != p.HostPath() {
		t.Errorf("expected offending path %q, got %q", p.HostPath(), unresolved.HostPath)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.MkdirAll(filepath.Join(data, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := mustNew(t, filepath.Join(data, "nested", "file.csv"), ReadOnly)
	if p.Resolved() {
		t.Error("expected unresolved before Resolve")
	}
	if err := p.Resolve(data, "/redock/data"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !p.Resolved() {
		t.Error("expected resolved after Resolve")
	}

	mp, err := p.MountPath()
	if err != nil {
		t.Fatalf("MountPath: %v", err)
	}
	if mp != "/redock/data/nested/file.csv" {
		t.Errorf("expected /redock/data/nested/file.csv, got %q", mp)
	}

	// Substituting the mount root back for the container base must reduce
	// to the original host path.
	back := filepath.Join(data, filepath.FromSlash(strings.TrimPrefix(mp, "/redock/data")))
	if back != p.HostPath() {
		t.Errorf("round trip produced %q, want %q", back, p.HostPath())
	}
}

func TestResolveRootEqualsPath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p := mustNew(t, dir, ReadOnly)
	if err := p.Resolve(dir, "/redock/work"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	mp, err := p.MountPath()
	if err != nil {
		t.Fatalf("MountPath: %v", err)
	}
	if mp != "/redock/work" {
		t.Errorf("expected /redock/work, got %q", mp)
	}
}

func TestResolveRejectsNonAncestor(t *testing.T) {
	dir := t.TempDir()
	p := mustNew(t, filepath.Join(dir, "a", "file.txt"), ReadOnly)

	if err := p.Resolve(filepath.Join(dir, "b"), "/redock/b"); err == nil {
		t.Error("expected error for non-ancestor mount root")
	}
}

func TestMountRootCandidate(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(data, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"existing directory mounts itself", data, data},
		{"existing file mounts its parent", file, data},
		{"missing path mounts its parent", filepath.Join(data, "out.csv"), data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustNew(t, tt.path, ReadOnly)
			if got := p.MountRootCandidate(); got != tt.want {
				t.Errorf("MountRootCandidate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if ReadOnly.String() != "read-only" || Writable.String() != "writable" {
		t.Errorf("unexpected kind strings: %q, %q", ReadOnly, Writable)
	}
}
