//go:build !unix

package broadcast

import (
	"errors"
	"os"
	"os/exec"
)

// No process groups here: only the encoder itself is signalled
func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(proc *os.Process) error {
	return killGroup(proc)
}

func killGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitDetails(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	return state.ExitCode(), ""
}
