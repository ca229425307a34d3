package mocks

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Screamnox/sarchura/types"
)

// FakeRunner records every command it is asked to run instead of executing
// it. A SideEffect callback can script per-command output and errors, so
// tests can fail a single tool invocation and assert what ran before it.
type FakeRunner struct {
	cmds        [][]string
	stdins      []string
	SideEffect  func(command string, args ...string) ([]byte, error)
	ReturnValue []byte
	Logger      types.SarchuraLogger
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Logger: types.NewNullLogger()}
}

func (r *FakeRunner) InitCmd(command string, args ...string) *exec.Cmd {
	return exec.Command(command, args...)
}

func (r *FakeRunner) Run(command string, args ...string) ([]byte, error) {
	r.cmds = append(r.cmds, append([]string{command}, args...))
	r.stdins = append(r.stdins, "")
	if r.SideEffect != nil {
		return r.SideEffect(command, args...)
	}
	return r.ReturnValue, nil
}

func (r *FakeRunner) RunCmd(cmd *exec.Cmd) ([]byte, error) {
	return r.Run(cmd.Path, cmd.Args[1:]...)
}

func (r *FakeRunner) RunContext(_ context.Context, command string, args ...string) ([]byte, error) {
	return r.Run(command, args...)
}

func (r *FakeRunner) RunWithInput(input, command string, args ...string) ([]byte, error) {
	out, err := r.Run(command, args...)
	r.stdins[len(r.stdins)-1] = input
	return out, err
}

func (r *FakeRunner) CommandExists(string) bool { return true }

func (r *FakeRunner) GetLogger() types.SarchuraLogger { return r.Logger }

func (r *FakeRunner) SetLogger(logger types.SarchuraLogger) { r.Logger = logger }

// ClearCmds drops the recorded history, keeping the side effects.
func (r *FakeRunner) ClearCmds() {
	r.cmds = nil
	r.stdins = nil
}

// GetCmds returns the recorded invocations in order.
func (r *FakeRunner) GetCmds() [][]string {
	return r.cmds
}

// LastStdin returns the stdin fed to the most recent command.
func (r *FakeRunner) LastStdin() string {
	if len(r.stdins) == 0 {
		return ""
	}
	return r.stdins[len(r.stdins)-1]
}

// CmdsMatch checks the recorded history matches the given sequence exactly.
// Every token is a regular expression anchored on both ends.
func (r *FakeRunner) CmdsMatch(cmds [][]string) error {
	if len(cmds) != len(r.cmds) {
		return fmt.Errorf("expected %d commands, got %d: %v", len(cmds), len(r.cmds), r.cmds)
	}
	for i, cmd := range cmds {
		if err := matchCmd(cmd, r.cmds[i]); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

// IncludesCmds checks every given command appears somewhere in the history.
func (r *FakeRunner) IncludesCmds(cmds [][]string) error {
	for _, cmd := range cmds {
		found := false
		for _, got := range r.cmds {
			if matchCmd(cmd, got) == nil {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("command %v not found in %v", cmd, r.cmds)
		}
	}
	return nil
}

// MatchMilestones checks the given commands appear in the history in the
// given relative order, other commands may run in between.
func (r *FakeRunner) MatchMilestones(cmds [][]string) error {
	history := r.cmds
	for _, cmd := range cmds {
		advanced := false
		for i, got := range history {
			if matchCmd(cmd, got) == nil {
				history = history[i+1:]
				advanced = true
				break
			}
		}
		if !advanced {
			return fmt.Errorf("milestone %v not reached, remaining history %v", cmd, history)
		}
	}
	return nil
}

func matchCmd(want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %v, got %v", want, got)
	}
	for i, tok := range want {
		matched, err := regexp.MatchString("^"+tok+"$", got[i])
		if err != nil || !matched {
			return fmt.Errorf("expected %v, got %v (token %q)", want, got, tok)
		}
	}
	return nil
}

// FakeSyscall records chroot and chdir calls without touching the process.
type FakeSyscall struct {
	Chroots       []string
	ErrorOnChroot bool
}

func (f *FakeSyscall) Chroot(path string) error {
	f.Chroots = append(f.Chroots, path)
	if f.ErrorOnChroot {
		return fmt.Errorf("chroot error")
	}
	return nil
}

func (f *FakeSyscall) Chdir(string) error { return nil }

func (f *FakeSyscall) Sync() {}

// WasChrootCalledWith reports whether a chroot to the given path happened.
func (f *FakeSyscall) WasChrootCalledWith(path string) bool {
	for _, c := range f.Chroots {
		if strings.HasSuffix(c, path) || c == path {
			return true
		}
	}
	return false
}
