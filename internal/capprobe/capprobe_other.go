//go:build !linux

package capprobe

// HasSysAdmin always reports false outside Linux; only the Linux adapter
// dispatcher consults it.
func HasSysAdmin() bool { return false }
