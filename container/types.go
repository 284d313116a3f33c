package container

import "fmt"

// Mount binds a host path into the container.
type Mount struct {
	Source   string // Host path
	Target   string // Container path
	ReadOnly bool
}

// RunOptions is the invocation plan handed to a Runner: everything needed
// to launch the child container once, wait for it, and forward its output.
// Built per invocation and discarded afterwards.
type RunOptions struct {
	Image       string
	Mounts      []Mount
	Env         map[string]string
	Command     []string
	WorkDir     string
	User        string // empty, "auto" (current uid:gid), or uid:gid
	MemoryLimit string // e.g. "4g", empty for no limit
	Network     string // bridge, none, host; empty for the runtime default
}

// LaunchError reports a failure to get the container running at all:
// runtime unreachable, image missing, create or start refused. It is
// distinct from the child process failing once started, which is not an
// error of this system and surfaces as a non-zero exit code instead.
type LaunchError struct {
	Image string
	Err   error
}

func (e *LaunchError) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("failed to launch container from image %q: %v", e.Image, e.Err)
	}
	return fmt.Sprintf("failed to launch container: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
