package boundary

import "os"

// DefaultSentinel is the environment variable whose presence marks a
// process as already running inside the target container. The boundary
// injects it into every container it launches; its value is never
// interpreted.
const DefaultSentinel = "REDOCK_CONTAINER"

// Inside reports whether this process is already running inside the
// container, using the default sentinel.
func Inside() bool {
	return InsideEnv(DefaultSentinel)
}

// InsideEnv reports whether the named sentinel variable is present in the
// process environment. Presence alone signals "inside"; an empty value
// still counts. Pure and idempotent.
func InsideEnv(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
