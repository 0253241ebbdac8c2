package exec

import "fmt"

type RunResult struct {
	// The exit code of the program.
	ExitCode int
	// The stdout output captured from running the program.
	Stdout string
	// The stderr output captured from running the program.
	Stderr string
}

func NewRunResult(code int, stdout string, stderr string) RunResult {
	return RunResult{
		ExitCode: code,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// ExitError is the error returned when a command unsuccessfully exits.
type ExitError struct {
	// The exit code of the program.
	ExitCode int
	// The command that was run.
	Cmd string

	stdOut string
	stdErr string
}

// NewExitError creates a new ExitError.
func NewExitError(
	exitCode int,
	cmd string,
	stdOut string,
	stdErr string,
) *ExitError {
	return &ExitError{
		ExitCode: exitCode,
		Cmd:      cmd,
		stdOut:   stdOut,
		stdErr:   stdErr,
	}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code: %d, stdout: %s, stderr: %s", e.ExitCode, e.stdOut, e.stdErr)
}

// StdOutput returns the captured stdout of the command that failed.
func (e *ExitError) StdOutput() string {
	return e.stdOut
}

// StderrOutput returns the captured stderr of the command that failed.
func (e *ExitError) StderrOutput() string {
	return e.stdErr
}
