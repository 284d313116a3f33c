package dockpath

import (
	"fmt"
	"strings"
)

// Value adapts a Path to the pflag.Value interface so path-typed flags can
// be declared on any pflag or cobra flag set:
//
//	in := dockpath.NewValue(dockpath.ReadOnly)
//	cmd.Flags().VarP(in, "input", "i", "input directory")
//
// The argument boundary discovers these values on the parsed flag set and
// turns them into bind mounts.
type Value struct {
	kind Kind
	def  string
	p    *Path
}

// NewValue returns an empty path flag value of the given kind.
func NewValue(kind Kind) *Value {
	return &Value{kind: kind}
}

// Set parses a host-syntax path. Called by the flag parser for each
// occurrence of the flag; the last occurrence wins.
func (v *Value) Set(s string) error {
	p, err := New(s, v.kind)
	if err != nil {
		return err
	}
	v.p = p
	return nil
}

func (v *Value) String() string {
	if v.p != nil {
		return v.p.HostPath()
	}
	return v.def
}

func (v *Value) Type() string { return "path" }

// Path returns the parsed value, nil if the flag was never set.
func (v *Value) Path() *Path { return v.p }

// Kind returns the declared usage of the flag's paths.
func (v *Value) Kind() Kind { return v.kind }

// SetDefault records the host-path default shown in usage text. The default
// is materialized into a Path by the boundary when the flag is left unset.
func (v *Value) SetDefault(def string) { v.def = def }

// Default returns the recorded default, empty if none.
func (v *Value) Default() string { return v.def }

// Materialize parses the recorded default into the value. Used by the
// boundary for path flags that were not supplied on the command line.
func (v *Value) Materialize() error {
	if v.p != nil || v.def == "" {
		return nil
	}
	return v.Set(v.def)
}

// List adapts a repeatable path flag to pflag.Value and pflag.SliceValue.
// Every occurrence of the flag appends one Path, in command-line order.
type List struct {
	kind  Kind
	paths []*Path
}

// NewList returns an empty repeatable path flag value of the given kind.
func NewList(kind Kind) *List {
	return &List{kind: kind}
}

func (l *List) Set(s string) error { return l.Append(s) }

// Append adds one more path to the list.
func (l *List) Append(s string) error {
	p, err := New(s, l.kind)
	if err != nil {
		return err
	}
	l.paths = append(l.paths, p)
	return nil
}

// Replace swaps the whole list, per pflag.SliceValue.
func (l *List) Replace(vals []string) error {
	l.paths = nil
	for _, s := range vals {
		if err := l.Append(s); err != nil {
			return err
		}
	}
	return nil
}

// GetSlice returns the host paths, per pflag.SliceValue.
func (l *List) GetSlice() []string {
	out := make([]string, len(l.paths))
	for i, p := range l.paths {
		out[i] = p.HostPath()
	}
	return out
}

func (l *List) String() string {
	return fmt.Sprintf("[%s]", strings.Join(l.GetSlice(), ","))
}

func (l *List) Type() string { return "pathArray" }

// Paths returns the parsed values in command-line order.
func (l *List) Paths() []*Path { return l.paths }

// Kind returns the declared usage of the flag's paths.
func (l *List) Kind() Kind { return l.kind }
