package types

import (
	"context"
	"os/exec"
	"strings"
)

// Runner abstracts the privileged external tools every stage shells out to.
// Implementations report the combined output and the exit status, callers
// decide what a failure means.
type Runner interface {
	InitCmd(command string, args ...string) *exec.Cmd
	Run(command string, args ...string) ([]byte, error)
	RunCmd(cmd *exec.Cmd) ([]byte, error)
	RunContext(ctx context.Context, command string, args ...string) ([]byte, error)
	// RunWithInput feeds input on stdin. The input is never logged, this is
	// the passphrase path.
	RunWithInput(input, command string, args ...string) ([]byte, error)
	CommandExists(command string) bool
	GetLogger() SarchuraLogger
	SetLogger(logger SarchuraLogger)
}

// RealRunner executes commands on the host.
type RealRunner struct {
	Logger SarchuraLogger
}

func (r RealRunner) InitCmd(command string, args ...string) *exec.Cmd {
	return exec.Command(command, args...)
}

func (r RealRunner) Run(command string, args ...string) ([]byte, error) {
	r.debug(command, args)
	return r.RunCmd(r.InitCmd(command, args...))
}

func (r RealRunner) RunCmd(cmd *exec.Cmd) ([]byte, error) {
	return cmd.CombinedOutput()
}

func (r RealRunner) RunContext(ctx context.Context, command string, args ...string) ([]byte, error) {
	r.debug(command, args)
	return exec.CommandContext(ctx, command, args...).CombinedOutput()
}

func (r RealRunner) RunWithInput(input, command string, args ...string) ([]byte, error) {
	r.debug(command, args)
	cmd := r.InitCmd(command, args...)
	cmd.Stdin = strings.NewReader(input)
	return cmd.CombinedOutput()
}

func (r RealRunner) CommandExists(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func (r RealRunner) GetLogger() SarchuraLogger {
	return r.Logger
}

func (r *RealRunner) SetLogger(logger SarchuraLogger) {
	r.Logger = logger
}

func (r RealRunner) debug(command string, args []string) {
	r.Logger.Logger.Debug().Str("cmd", command).Str("args", strings.Join(args, " ")).Msg("Running command")
}
