//go:build unix

package broadcast

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the encoder as leader of its own process group so
// signals reach any helpers it forks.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalGroup(proc *os.Process, sig syscall.Signal) error {
	if proc == nil || proc.Pid <= 0 {
		return nil
	}

	// Negative pid targets the whole group; pgid == pid because of Setpgid
	err := syscall.Kill(-proc.Pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}

	// Fall back to the leader alone
	if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// terminateGroup asks the encoder to exit
func terminateGroup(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGTERM)
}

// killGroup force-kills the encoder and its children
func killGroup(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGKILL)
}

// exitDetails extracts the exit code and terminating signal name, if any
func exitDetails(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return state.ExitCode(), ""
}
