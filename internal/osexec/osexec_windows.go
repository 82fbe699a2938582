//go:build windows

package osexec

import (
	"os/exec"
	"syscall"
)

// DisableInterruptSignal gives c its own console process group so a
// CTRL_C_EVENT delivered to this process's console does not also reach the
// child.
func DisableInterruptSignal(c *exec.Cmd) {
	if c.SysProcAttr == nil {
		c.SysProcAttr = &syscall.SysProcAttr{}
	}

	c.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}
