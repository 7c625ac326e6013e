package process

import "time"

// DefaultGracePeriod is how long Terminate waits after SIGTERM before
// escalating to SIGKILL when neither the command nor the spawner sets one.
const DefaultGracePeriod = 2 * time.Second

// Command configures a subprocess to spawn.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	s := c.Binary
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}
