// Package boundary decides, once per process, whether an invocation is
// already inside its container or must relaunch itself there. It wraps
// ordinary pflag argument parsing: inside the container parsed values are
// returned to the caller untouched, while outside the declared path
// arguments are harvested, a minimal mount set is planned, the command line
// is rewritten to container paths, and the process re-executes inside the
// container and exits with the child's exit code. Outside, control never
// returns to the caller; this intentionally diverges from a normal
// parse-and-return contract.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/redock/redock/container"
	"github.com/redock/redock/dockpath"
	"github.com/redock/redock/mountplan"
)

// Exit codes for boundary-internal failures, kept distinct from the wrapped
// program's own codes so callers and CI can tell infrastructure failures
// from program failures.
const (
	// ExitUsage is the conventional code for malformed command-line input.
	ExitUsage = 2
	// ExitPlanning reports a mount planning failure (unresolved path or
	// container target collision).
	ExitPlanning = 124
	// ExitLaunch reports that the container could not be launched at all
	// (runtime unreachable, image missing).
	ExitLaunch = 125
)

// Options configures an argument boundary.
type Options struct {
	// Image is the container image the program is re-executed in.
	Image string

	// Command is the in-container command prefix the rewritten arguments
	// are appended to. Empty means the program's own name, which must then
	// be on the image's PATH.
	Command []string

	// Script optionally names a host file to mount read-only and append to
	// Command, for programs whose code lives on the host rather than in
	// the image (an interpreter script, for example).
	Script string

	// Sentinel overrides the environment variable whose presence marks
	// in-container execution. Empty means DefaultSentinel.
	Sentinel string

	// Env is injected into the container environment. The sentinel is
	// always added on top.
	Env map[string]string

	// ExtraMounts are bind mounts not derived from declared arguments.
	ExtraMounts []container.Mount

	// Container runtime knobs, passed through to the runner.
	WorkDir     string
	User        string
	MemoryLimit string
	Network     string

	// Runner overrides the Docker-backed runner. For tests.
	Runner container.Runner

	// Exit overrides os.Exit. For tests.
	Exit func(code int)

	// Stderr receives diagnostics; nil means os.Stderr.
	Stderr io.Writer
}

func (o Options) sentinel() string {
	if o.Sentinel != "" {
		return o.Sentinel
	}
	return DefaultSentinel
}

func (o Options) exit(code int) {
	if o.Exit != nil {
		o.Exit(code)
		return
	}
	os.Exit(code)
}

func (o Options) errw() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

// pathFlag is one declared path-typed flag, in declaration order.
type pathFlag struct {
	name  string
	value *dockpath.Value
	list  *dockpath.List
}

// Boundary wraps a pflag flag set with path-aware parsing. Declare ordinary
// flags through Flags and path-typed flags through Path, PathList and
// friends, then call Parse.
type Boundary struct {
	name string
	opts Options

	flags     *pflag.FlagSet
	pathFlags []*pathFlag

	posDeclared bool
	posKind     dockpath.Kind
	posPaths    []*dockpath.Path
}

// New creates a boundary named after the program.
func New(name string, opts Options) *Boundary {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	return &Boundary{name: name, opts: opts, flags: fs}
}

// Flags exposes the wrapped flag set for declaring non-path flags. Path
// flags must go through the Path helpers so the boundary can find them.
func (b *Boundary) Flags() *pflag.FlagSet { return b.flags }

// Path declares a path-typed flag of the given kind.
func (b *Boundary) Path(name, shorthand, usage string, kind dockpath.Kind) *dockpath.Value {
	v := dockpath.NewValue(kind)
	b.flags.VarP(v, name, shorthand, usage)
	b.pathFlags = append(b.pathFlags, &pathFlag{name: name, value: v})
	return v
}

// PathDefault declares a path-typed flag with a host-path default. When the
// flag is left unset outside the container, the default is mounted and an
// explicit flag is appended to the rewritten command line, because the host
// default would be meaningless inside.
func (b *Boundary) PathDefault(name, shorthand, def, usage string, kind dockpath.Kind) *dockpath.Value {
	v := b.Path(name, shorthand, usage, kind)
	v.SetDefault(def)
	b.flags.Lookup(name).DefValue = def
	return v
}

// PathList declares a repeatable path-typed flag.
func (b *Boundary) PathList(name, shorthand, usage string, kind dockpath.Kind) *dockpath.List {
	l := dockpath.NewList(kind)
	b.flags.VarP(l, name, shorthand, usage)
	b.pathFlags = append(b.pathFlags, &pathFlag{name: name, list: l})
	return l
}

// PositionalPaths declares that the remaining positional arguments are all
// paths of the given kind.
func (b *Boundary) PositionalPaths(kind dockpath.Kind) {
	b.posDeclared = true
	b.posKind = kind
}

// Positionals returns the positional path arguments after Parse. Inside the
// container these wrap the rewritten container-side tokens, which is what
// the program should operate on.
func (b *Boundary) Positionals() []*dockpath.Path { return b.posPaths }

// Parse parses argv (without the program name) and consults the boundary
// sentinel. Inside the container it returns with flag values populated and
// the caller proceeds as after any flag parse. Outside it plans mounts,
// rewrites the command line and re-executes inside the container; on that
// side Parse terminates the process with the child's exit code and only
// returns when a test injected a non-terminating Exit.
func (b *Boundary) Parse(ctx context.Context, argv []string) error {
	if err := b.flags.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			b.opts.exit(0)
			return err
		}
		// pflag already reported the error and usage on its output.
		b.opts.exit(ExitUsage)
		return err
	}

	if InsideEnv(b.opts.sentinel()) {
		if b.posDeclared {
			for _, arg := range b.flags.Args() {
				p, err := dockpath.New(arg, b.posKind)
				if err != nil {
					fmt.Fprintln(b.opts.errw(), err)
					b.opts.exit(ExitUsage)
					return err
				}
				b.posPaths = append(b.posPaths, p)
			}
		}
		return nil
	}

	h := harvestInfo{
		flags:       mergePathFlags(b.pathFlags, harvestFlagSet(b.flags)),
		posDeclared: b.posDeclared,
		posKind:     b.posKind,
	}
	return relaunch(ctx, b.flags, argv, h, b.opts)
}

// harvestInfo names the declared path arguments a relaunch must cover.
type harvestInfo struct {
	flags       []*pathFlag
	posDeclared bool
	posKind     dockpath.Kind
}

// relaunch is the outside-the-container path shared by Boundary and Attach:
// harvest path values, plan mounts, rewrite argv, launch, wait, exit with
// the child's code. It only returns after a test-injected Exit.
func relaunch(ctx context.Context, fs *pflag.FlagSet, argv []string, h harvestInfo, opts Options) error {
	plan, err := buildPlan(fs, argv, h, opts)
	if err != nil {
		fmt.Fprintln(opts.errw(), "redock:", err)
		opts.exit(ExitPlanning)
		return err
	}

	runner := opts.Runner
	if runner == nil {
		dr, err := container.NewDockerRunner()
		if err != nil {
			fmt.Fprintln(opts.errw(), "redock:", err)
			opts.exit(ExitLaunch)
			return err
		}
		defer dr.Close()
		runner = dr
	}

	code, err := runner.Run(ctx, *plan)
	if err != nil {
		fmt.Fprintln(opts.errw(), "redock:", err)
		opts.exit(ExitLaunch)
		return err
	}

	// The child's exit code is propagated verbatim, success or not.
	opts.exit(code)
	return nil
}

// buildPlan computes the invocation plan for one outside-invocation.
func buildPlan(fs *pflag.FlagSet, argv []string, h harvestInfo, opts Options) (*container.RunOptions, error) {
	var all []*dockpath.Path

	var script *dockpath.Path
	if opts.Script != "" {
		p, err := dockpath.New(opts.Script, dockpath.ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("invalid script path: %w", err)
		}
		script = p
		all = append(all, p)
	}

	// Path flags left at a host-path default still need mounting; they are
	// appended explicitly to the rewritten command line later.
	var defaulted []*pathFlag
	for _, pf := range h.flags {
		switch {
		case pf.value != nil:
			if !fs.Changed(pf.name) {
				if err := pf.value.Materialize(); err != nil {
					return nil, fmt.Errorf("invalid default for --%s: %w", pf.name, err)
				}
				if pf.value.Path() != nil {
					defaulted = append(defaulted, pf)
				}
			}
			if p := pf.value.Path(); p != nil {
				all = append(all, p)
			}
		case pf.list != nil:
			all = append(all, pf.list.Paths()...)
		}
	}

	var positionals []*dockpath.Path
	if h.posDeclared {
		for _, arg := range fs.Args() {
			p, err := dockpath.New(arg, h.posKind)
			if err != nil {
				return nil, err
			}
			positionals = append(positionals, p)
			all = append(all, p)
		}
	}

	specs, err := mountplan.Plan(all)
	if err != nil {
		return nil, err
	}

	sub, err := newSubstituter(h.flags, positionals, h.posDeclared)
	if err != nil {
		return nil, err
	}
	args := rewriteArgs(fs, argv, sub)
	for _, pf := range defaulted {
		mp, err := pf.value.Path().MountPath()
		if err != nil {
			return nil, err
		}
		args = append(args, "--"+pf.name, mp)
	}

	command := opts.Command
	if len(command) == 0 && script == nil {
		command = []string{filepath.Base(os.Args[0])}
	}
	command = append([]string{}, command...)
	if script != nil {
		mp, err := script.MountPath()
		if err != nil {
			return nil, err
		}
		command = append(command, mp)
	}
	command = append(command, args...)

	env := make(map[string]string, len(opts.Env)+1)
	for k, v := range opts.Env {
		env[k] = v
	}
	env[opts.sentinel()] = "1"

	mounts := make([]container.Mount, 0, len(specs)+len(opts.ExtraMounts))
	for _, s := range specs {
		mounts = append(mounts, container.Mount{
			Source:   s.HostRoot,
			Target:   s.ContainerTarget,
			ReadOnly: s.ReadOnly,
		})
	}
	mounts = append(mounts, opts.ExtraMounts...)

	return &container.RunOptions{
		Image:       opts.Image,
		Mounts:      mounts,
		Env:         env,
		Command:     command,
		WorkDir:     opts.WorkDir,
		User:        opts.User,
		MemoryLimit: opts.MemoryLimit,
		Network:     opts.Network,
	}, nil
}
