//go:build !windows

// Package osexec provides small platform-specific helpers for invoking
// external tools, grounded on the teacher's internal/osexec contract
// (DisableInterruptSignal) reverse-engineered from its test.
package osexec

import (
	"os/exec"
	"syscall"
)

// DisableInterruptSignal puts c in its own process group so a SIGINT sent to
// this process's group (e.g. Ctrl-C at a terminal) does not also reach the
// child, letting the parent decide whether to propagate it after the child
// has had a chance to flush/clean up.
func DisableInterruptSignal(c *exec.Cmd) {
	if c.SysProcAttr == nil {
		c.SysProcAttr = &syscall.SysProcAttr{}
	}

	c.SysProcAttr.Setpgid = true
}
