package boundary

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/redock/redock/dockpath"
)

// Attach wires the boundary into an existing cobra command. Path-typed
// flags are declared on the command's own flag set with dockpath.NewValue
// or dockpath.NewList; Attach finds them after parsing. Inside the
// container the command's original RunE executes; outside, the RunE is
// replaced by planning and re-execution, and the process exits with the
// child's code.
//
// Attach covers single-command programs, mirroring the boundary's
// one-parser model; positional path arguments need the Boundary API.
func Attach(cmd *cobra.Command, opts Options) {
	runE := cmd.RunE
	run := cmd.Run
	cmd.Run = nil
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if InsideEnv(opts.sentinel()) {
			if runE != nil {
				return runE(cmd, args)
			}
			if run != nil {
				run(cmd, args)
			}
			return nil
		}
		h := harvestInfo{flags: harvestFlagSet(cmd.Flags())}
		return relaunch(cmd.Context(), cmd.Flags(), os.Args[1:], h, opts)
	}
}

// mergePathFlags unions declared and discovered path flags, keeping
// declaration order first.
func mergePathFlags(declared, discovered []*pathFlag) []*pathFlag {
	seen := make(map[string]bool, len(declared))
	out := append([]*pathFlag{}, declared...)
	for _, pf := range declared {
		seen[pf.name] = true
	}
	for _, pf := range discovered {
		if !seen[pf.name] {
			out = append(out, pf)
		}
	}
	return out
}

// harvestFlagSet collects the path-typed flags declared on an arbitrary
// flag set, in the set's (lexical, stable) visit order.
func harvestFlagSet(fs *pflag.FlagSet) []*pathFlag {
	var flags []*pathFlag
	fs.VisitAll(func(f *pflag.Flag) {
		switch v := f.Value.(type) {
		case *dockpath.Value:
			flags = append(flags, &pathFlag{name: f.Name, value: v})
		case *dockpath.List:
			flags = append(flags, &pathFlag{name: f.Name, list: v})
		}
	})
	return flags
}
