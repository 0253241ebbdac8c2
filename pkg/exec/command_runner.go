package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// CommandRunner exposes the contract for executing console/shell commands for the specified runArgs
type CommandRunner interface {
	Run(ctx context.Context, args RunArgs) (RunResult, error)
	RunList(ctx context.Context, commands []string, args RunArgs) (RunResult, error)
	// Start launches a long running command without waiting for it to exit.
	// Stdout and stderr are exposed as pipes on the returned Job.
	Start(ctx context.Context, args RunArgs) (*Job, error)
}

type RunnerOptions struct {
	// Stdin is the input stream. If nil, os.Stdin is used.
	Stdin io.Reader
	// Stdout is the output stream. If nil, os.Stdout is used.
	Stdout io.Writer
	// Stderr is the error stream. If nil, os.Stderr is used.
	Stderr io.Writer
	// Whether debug logging is enabled. False by default.
	DebugLogging bool
}

// Creates a new default instance of the CommandRunner.
// Passing nil will use the default values for RunnerOptions.
func NewCommandRunner(opt *RunnerOptions) CommandRunner {
	if opt == nil {
		opt = &RunnerOptions{}
	}

	runner := &commandRunner{
		stdin:        opt.Stdin,
		stdout:       opt.Stdout,
		stderr:       opt.Stderr,
		debugLogging: opt.DebugLogging,
	}

	if runner.stdin == nil {
		runner.stdin = os.Stdin
	}

	if runner.stdout == nil {
		runner.stdout = os.Stdout
	}

	if runner.stderr == nil {
		runner.stderr = os.Stderr
	}

	return runner
}

// commandRunner is the default private implementation of the CommandRunner interface
// This implementation executes actual commands on the underlying console/shell
type commandRunner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// Whether debugLogging logging is enabled
	debugLogging bool
}

// Job represents a started, long running command. The caller owns the
// stdout/stderr pipes and is expected to drain them.
type Job struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd *exec.Cmd
}

// Pid returns the operating system process id for the started command.
func (j *Job) Pid() int {
	if j.cmd.Process == nil {
		return 0
	}
	return j.cmd.Process.Pid
}

// Wait blocks until the command exits, returning the exit code.
func (j *Job) Wait() (int, error) {
	err := j.cmd.Wait()
	if j.cmd.ProcessState == nil {
		return -1, err
	}
	return j.cmd.ProcessState.ExitCode(), err
}

// Kill forcibly terminates the command.
func (j *Job) Kill() error {
	if j.cmd.Process == nil {
		return nil
	}
	return j.cmd.Process.Kill()
}

// Run runs the command specified in 'args'.
//
// Returns a RunResult that is the result of the command.
// If the underlying command exits unsuccessfully, *ExitError is returned. Other possible errors
// would likely be I/O errors or context cancellation.
//
// NOTE: on Windows the command will automatically be run within a shell. This means .bat/.cmd
// file based commands should just work.
func (r *commandRunner) Run(ctx context.Context, args RunArgs) (RunResult, error) {
	// use the shell on Windows since most commands are actually just batch files wrapping
	// real commands. And even if they're not, this will work fine without having to do any
	// probing or checking.
	cmd, err := newCmd(ctx, args.Cmd, args.Args, args.UseShell || runtime.GOOS == "windows")
	if err != nil {
		return RunResult{}, err
	}

	cmd.Dir = args.Cwd

	var stdin io.Reader
	if args.StdIn != nil {
		stdin = args.StdIn
	} else {
		stdin = new(bytes.Buffer)
	}

	var stdout, stderr bytes.Buffer

	cmd.Env = appendEnv(args.Env)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if args.Stdout != nil {
		cmd.Stdout = io.MultiWriter(args.Stdout, &stdout)
	}

	if args.Stderr != nil {
		cmd.Stderr = io.MultiWriter(args.Stderr, &stderr)
	}

	logTitle := strings.Builder{}
	logBody := strings.Builder{}
	defer func() {
		logTitle.WriteString(logBody.String())
		log.Print(logTitle.String())
	}()

	logTitle.WriteString(fmt.Sprintf("Run exec: '%s %s' ",
		args.Cmd,
		redactSensitiveData(
			strings.Join(redactSensitiveArgs(args.Args, args.SensitiveData), " "))))

	debugLogEnabled := r.debugLogging || args.Debug

	if debugLogEnabled && len(args.Env) > 0 {
		logBody.WriteString("Additional env:\n")
		for _, kv := range args.Env {
			logBody.WriteString(fmt.Sprintf("   %s\n", kv))
		}
	}

	err = cmd.Run()

	result := RunResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if debugLogEnabled {
		logStdOut := strings.TrimSuffix(redactSensitiveData(result.Stdout), "\n")
		if len(logStdOut) > 0 {
			logBody.WriteString(fmt.Sprintf(
				"-------------------------------------stdout-------------------------------------------\n%s\n",
				logStdOut))
		}
		logStdErr := strings.TrimSuffix(redactSensitiveData(result.Stderr), "\n")
		if len(logStdErr) > 0 {
			logBody.WriteString(fmt.Sprintf(
				"-------------------------------------stderr-------------------------------------------\n%s\n",
				logStdErr))
		}
	}

	logTitle.WriteString(fmt.Sprintf(", exit code: %d\n", result.ExitCode))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = NewExitError(exitErr.ExitCode(), args.Cmd, result.Stdout, result.Stderr)
	}

	return result, err
}

func (r *commandRunner) RunList(ctx context.Context, commands []string, args RunArgs) (RunResult, error) {
	cmd, err := newCmd(ctx, "", commands, true)
	if err != nil {
		return NewRunResult(-1, "", ""), err
	}

	cmd.Dir = args.Cwd
	cmd.Env = appendEnv(args.Env)

	var stdOutBuf bytes.Buffer
	var stdErrBuf bytes.Buffer
	cmd.Stdout = &stdOutBuf
	cmd.Stderr = &stdErrBuf

	err = cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = NewExitError(exitErr.ExitCode(), strings.Join(commands, " && "), stdOutBuf.String(), stdErrBuf.String())
	}

	return NewRunResult(
		cmd.ProcessState.ExitCode(),
		stdOutBuf.String(),
		stdErrBuf.String(),
	), err
}

func (r *commandRunner) Start(ctx context.Context, args RunArgs) (*Job, error) {
	cmd, err := newCmd(ctx, args.Cmd, args.Args, args.UseShell || runtime.GOOS == "windows")
	if err != nil {
		return nil, err
	}

	cmd.Dir = args.Cwd
	cmd.Env = appendEnv(args.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	log.Printf("Start exec: '%s %s'",
		args.Cmd,
		redactSensitiveData(strings.Join(redactSensitiveArgs(args.Args, args.SensitiveData), " ")))

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &Job{
		Stdout: stdout,
		Stderr: stderr,
		cmd:    cmd,
	}, nil
}

func appendEnv(env []string) []string {
	if len(env) > 0 {
		return append(os.Environ(), env...)
	}

	return nil
}

// newCmd builds an *exec.Cmd, optionally using a shell appropriate for windows
// or POSIX environments.
// An empty cmd parameter indicates "command list mode", which means that args are combined into
// a single command list, joined with the && operator.
func newCmd(ctx context.Context, cmd string, args []string, useShell bool) (*exec.Cmd, error) {
	if !useShell {
		if cmd == "" {
			return nil, errors.New("command must be provided if shell is not used")
		}
		return exec.CommandContext(ctx, cmd, args...), nil
	}

	var shellName string
	var shellCommandPrefix string

	if runtime.GOOS == "windows" {
		dir := os.Getenv("SYSTEMROOT")
		if dir == "" {
			return nil, errors.New("environment variable 'SYSTEMROOT' has no value")
		}

		shellName = filepath.Join(dir, "System32", "cmd.exe")
		shellCommandPrefix = "/c"

		if cmd == "" {
			args = []string{strings.Join(args, " && ")}
		} else {
			args = append([]string{cmd}, args...)
		}
	} else {
		shellName = filepath.Join("/", "bin", "sh")
		shellCommandPrefix = "-c"

		if cmd == "" {
			args = []string{strings.Join(args, " && ")}
		} else {
			var cmdBuilder strings.Builder
			cmdBuilder.WriteString(cmd)

			for i := range args {
				cmdBuilder.WriteString(" \"$")
				fmt.Fprintf(&cmdBuilder, "%d", i)
				cmdBuilder.WriteString("\"")
			}

			args = append([]string{cmdBuilder.String()}, args...)
		}
	}

	var allArgs []string
	allArgs = append(allArgs, shellCommandPrefix)
	allArgs = append(allArgs, args...)

	return exec.CommandContext(ctx, shellName, allArgs...), nil
}

type redactData struct {
	matchString   *regexp.Regexp
	replaceString string
}

const cRedacted = "<redacted>"

func redactSensitiveArgs(args []string, sensitiveDataMatch []string) []string {
	if len(sensitiveDataMatch) == 0 {
		return args
	}
	redactedArgs := make([]string, len(args))
	for i, arg := range args {
		redacted := arg
		for _, sensitiveData := range sensitiveDataMatch {
			redacted = strings.ReplaceAll(redacted, sensitiveData, cRedacted)
		}
		redactedArgs[i] = redacted
	}
	return redactedArgs
}

func redactSensitiveData(msg string) string {
	var regexpRedactRules = map[string]redactData{
		"access token": {
			regexp.MustCompile(`"accessToken": ".*"`),
			`"accessToken": "` + cRedacted + `"`,
		},
		"connection string": {
			regexp.MustCompile(`AccountKey=\S+`),
			"AccountKey=" + cRedacted,
		},
		"password": {
			regexp.MustCompile(`--password \S+`),
			"--password " + cRedacted,
		},
	}

	for _, redactRule := range regexpRedactRules {
		regMatchString := redactRule.matchString
		msg = regMatchString.ReplaceAllString(msg, redactRule.replaceString)
	}
	return msg
}
