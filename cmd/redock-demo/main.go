// redock-demo shows a program that transparently re-executes itself inside
// a container. Run on the host, it mounts its path arguments, rewrites them
// to container paths and relaunches; inside the container the same binary
// does the actual work.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redock/redock/boundary"
	"github.com/redock/redock/config"
	"github.com/redock/redock/dockpath"
)

var (
	input  = dockpath.NewValue(dockpath.ReadOnly)
	output = dockpath.NewValue(dockpath.Writable)
)

func main() {
	config.Init(os.Getenv("REDOCK_CONFIG"))
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "redock-demo",
		Short: "List an input directory into an output file, inside a container",
		Long: `redock-demo lists the entries of --input and writes them to --output.
Invoked on the host it relaunches itself inside the configured container
image with both paths mounted; invoked inside it just does the work.`,
		RunE:         run,
		SilenceUsage: true,
	}
	rootCmd.Flags().VarP(input, "input", "i", "input directory (mounted read-only)")
	rootCmd.Flags().VarP(output, "output", "o", "output file (its directory is mounted read-write)")
	rootCmd.Flags().Int("iterations", 1, "how many listing passes to write")
	rootCmd.Flags().Bool("verbose", false, "report what was written")

	image := cfg.Image.Name
	if image == "" {
		image = "redock-demo:latest"
	}
	boundary.Attach(rootCmd, boundary.Options{
		Image:       image,
		Sentinel:    cfg.Boundary.Sentinel,
		Env:         cfg.ContainerEnv(),
		ExtraMounts: cfg.ExtraMounts(),
		WorkDir:     cfg.Container.WorkDir,
		User:        cfg.Container.User,
		MemoryLimit: cfg.Container.MemoryLimit,
		Network:     cfg.Container.Network,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run only ever executes inside the container; host-side invocations are
// intercepted by the boundary before it is reached.
func run(cmd *cobra.Command, args []string) error {
	iterations, _ := cmd.Flags().GetInt("iterations")
	verbose, _ := cmd.Flags().GetBool("verbose")

	out := output.Path()
	if out == nil {
		return fmt.Errorf("--output is required")
	}

	var names []string
	if in := input.Path(); in != nil {
		entries, err := os.ReadDir(in.HostPath())
		if err != nil {
			return fmt.Errorf("failed to read input directory: %w", err)
		}
		for _, e := range entries {
			names = append(names, e.Name())
		}
	}

	f, err := os.Create(out.HostPath())
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	for i := 0; i < iterations; i++ {
		if _, err := fmt.Fprintf(f, "pass %d: %s\n", i+1, strings.Join(names, " ")); err != nil {
			return err
		}
	}

	if verbose {
		fmt.Printf("wrote %d passes to %s\n", iterations, out.HostPath())
	}
	return nil
}
