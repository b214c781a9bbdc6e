package exectool

import (
	"context"
	"fmt"
	"os/exec"
)

// Sandbox runs a prepared *exec.Cmd under some isolation policy. Kernel-level
// backends (seatbelt, landlock, a Windows restricted token) are out of
// scope — callers wire those in externally. This package
// ships two: passthroughSandbox (the zero-isolation default, used whenever
// no real backend is configured) and the Docker-backed container sandbox in
// dockersandbox.go.
type Sandbox interface {
	// Run starts cmd, which has already been configured with Dir/Env/Args,
	// and returns whether the sandbox itself refused to run the command
	// (sandboxDenied) as distinct from the command running and exiting
	// non-zero on its own.
	Run(ctx context.Context, cmd *exec.Cmd) (sandboxDenied bool, err error)
}

// passthroughSandbox runs the command directly with no additional
// isolation. It is the default Sandbox so that RunSandboxed outcomes still
// execute when no kernel-level backend has been wired in by the host
// process.
type passthroughSandbox struct{}

func (passthroughSandbox) Run(ctx context.Context, cmd *exec.Cmd) (bool, error) {
	return false, cmd.Run()
}

// ExitError is the error a Sandbox implementation returns in place of
// *exec.ExitError when the sandboxed process exits non-zero but was never a
// direct child the Go runtime can hand back a *os.ProcessState for (for
// example, a container's exit status read back over the Docker API).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("sandboxed command exited with code %d", e.Code) }

// ExitCode returns the sandboxed process's exit code.
func (e *ExitError) ExitCode() int { return e.Code }
