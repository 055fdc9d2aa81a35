package certificates

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

const privilegeEscalationCommand = "sudo"

// CommandRunner executes system commands.
type CommandRunner interface {
	Run(ctx context.Context, executable string, arguments []string) error
	RunWithPrivileges(ctx context.Context, executable string, arguments []string) error
	LookPath(executable string) (string, error)
}

// ExecutableRunner executes commands using the local operating system.
type ExecutableRunner struct{}

// NewExecutableRunner constructs an ExecutableRunner.
func NewExecutableRunner() ExecutableRunner {
	return ExecutableRunner{}
}

// Run executes the executable with the provided arguments.
func (executableRunner ExecutableRunner) Run(ctx context.Context, executable string, arguments []string) error {
	command := exec.CommandContext(ctx, executable, arguments...)
	var stderrBuffer bytes.Buffer
	command.Stderr = &stderrBuffer
	err := command.Run()
	if err != nil {
		return fmt.Errorf("execute %s: %w: %s", executable, err, stderrBuffer.String())
	}
	return nil
}

// RunWithPrivileges executes the executable with elevated rights when the
// current process does not already hold them. Elevation is decided per call,
// not cached, because a single run mixes privileged system-directory writes
// with unprivileged home-directory writes.
func (executableRunner ExecutableRunner) RunWithPrivileges(ctx context.Context, executable string, arguments []string) error {
	if processHoldsPrivileges() {
		return executableRunner.Run(ctx, executable, arguments)
	}
	if _, lookupErr := exec.LookPath(privilegeEscalationCommand); lookupErr != nil {
		return executableRunner.Run(ctx, executable, arguments)
	}
	escalatedArguments := append([]string{"--", executable}, arguments...)
	return executableRunner.Run(ctx, privilegeEscalationCommand, escalatedArguments)
}

// LookPath resolves the executable on the current PATH.
func (executableRunner ExecutableRunner) LookPath(executable string) (string, error) {
	return exec.LookPath(executable)
}

func processHoldsPrivileges() bool {
	return os.Geteuid() == 0
}
