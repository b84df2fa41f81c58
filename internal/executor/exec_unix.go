//go:build !windows

package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/term"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
)

// NewProcessGroupExecHandler returns an ExecHandlerFunc that runs external
// commands with job control when stdin is a terminal: the child is placed
// in its own process group and made the foreground group, so Ctrl+C goes to
// the child and llamacli regains the terminal when it exits.
//
// Without a terminal the child stays in llamacli's process group and shares
// its signals.
//
// killTimeout is how long to wait after SIGINT before sending SIGKILL when
// the context is cancelled programmatically. A negative value kills
// immediately.
func NewProcessGroupExecHandler(killTimeout time.Duration) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		path, err := interp.LookPathDir(hc.Dir, hc.Env, args[0])
		if err != nil {
			fmt.Fprintln(hc.Stderr, err)
			return interp.ExitStatus(127)
		}

		ttyFd := -1
		if f, ok := hc.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			ttyFd = int(f.Fd())
		}

		cmd := exec.Cmd{
			Path:   path,
			Args:   args,
			Dir:    hc.Dir,
			Env:    execEnv(hc.Env),
			Stdin:  hc.Stdin,
			Stdout: hc.Stdout,
			Stderr: hc.Stderr,
		}
		if ttyFd >= 0 {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		}

		if err := cmd.Start(); err != nil {
			return err
		}

		pid := cmd.Process.Pid
		signalTarget := pid

		if ttyFd >= 0 {
			signalTarget = -pid

			// Taking the terminal back from the background raises SIGTTOU.
			signal.Ignore(syscall.SIGTTOU)
			defer signal.Reset(syscall.SIGTTOU)

			originalPgrp, _ := tcgetpgrp(ttyFd)
			_ = tcsetpgrp(ttyFd, pid)
			defer func() {
				if originalPgrp > 0 {
					_ = tcsetpgrp(ttyFd, originalPgrp)
				}
			}()
		}

		// Wait for the command or context cancellation
		waitDone := make(chan error, 1)
		go func() {
			waitDone <- cmd.Wait()
		}()

		select {
		case err := <-waitDone:
			return exitStatus(err)
		case <-ctx.Done():
			_ = syscall.Kill(signalTarget, syscall.SIGINT)

			if killTimeout >= 0 {
				select {
				case err := <-waitDone:
					return exitStatus(err)
				case <-time.After(killTimeout):
					_ = syscall.Kill(signalTarget, syscall.SIGKILL)
				}
			} else {
				_ = syscall.Kill(signalTarget, syscall.SIGKILL)
			}

			return exitStatus(<-waitDone)
		}
	}
}

// exitStatus converts a finished process error into the runner's exit
// status, the way interp.DefaultExecHandler does.
func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return interp.ExitStatus(128 + int(status.Signal()))
		}
		return interp.ExitStatus(exitErr.ExitCode())
	}
	return err
}

// tcgetpgrp returns the foreground process group ID of the terminal.
func tcgetpgrp(fd int) (int, error) {
	var pgrp int32
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TIOCGPGRP, uintptr(unsafe.Pointer(&pgrp)))
	if errno != 0 {
		return 0, errno
	}
	return int(pgrp), nil
}

// tcsetpgrp sets the foreground process group ID of the terminal.
func tcsetpgrp(fd int, pgrp int) error {
	pgrp32 := int32(pgrp)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TIOCSPGRP, uintptr(unsafe.Pointer(&pgrp32)))
	if errno != 0 {
		return errno
	}
	return nil
}

// execEnv converts expand.Environ to []string for exec.Cmd.Env
func execEnv(env expand.Environ) []string {
	var result []string
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			result = append(result, name+"="+vr.String())
		}
		return true
	})
	return result
}
