//go:build linux

// Package capprobe answers one question: can this process use fanotify's
// privileged mode? It exists because fanotify requires CAP_SYS_ADMIN in
// the process's effective set, and checking that accurately needs the
// real capability bitmask rather than the common but misleading
// geteuid() == 0 shortcut (a non-root process can hold CAP_SYS_ADMIN via
// file capabilities or a user namespace; root can have dropped it).
package capprobe

import (
	"os"

	"golang.org/x/sys/unix"
)

// HasSysAdmin reports whether CAP_SYS_ADMIN is in the calling process's
// effective capability set. On any probe failure it falls back to
// checking the effective UID, so the dispatcher always gets an answer.
func HasSysAdmin() bool {
	ok, err := sysAdminViaCapget()
	if err == nil {
		return ok
	}
	return os.Geteuid() == 0
}

func sysAdminViaCapget() (bool, error) {
	c, err := newCapState()
	if err != nil {
		return false, err
	}
	return c.effectiveIsSet(unix.CAP_SYS_ADMIN)
}

// capState holds one Capget result, read fresh on every probe: a process's
// capabilities can change across the lifetime of a long-running program
// (e.g. after a setuid/setcap-aware supervisor adjusts them).
type capState struct {
	header unix.CapUserHeader
	data   [2]unix.CapUserData
}

func newCapState() (*capState, error) {
	var header unix.CapUserHeader
	if err := unix.Capget(&header, nil); err != nil {
		return nil, err
	}
	return &capState{header: header}, nil
}

func (c *capState) effectiveIsSet(capability uint) (bool, error) {
	c.header.Pid = int32(os.Getpid())
	if err := unix.Capget(&c.header, &c.data[0]); err != nil {
		return false, err
	}
	i, bit := uint(0), capability
	if bit > 31 {
		i, bit = 1, bit-32
	}
	return (1<<bit)&c.data[i].Effective != 0, nil
}
