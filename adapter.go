package watch

import "time"

// adapterOpen is implemented per-OS in adapter_darwin.go, adapter_linux.go,
// and adapter_other.go. It blocks for the lifetime of the watch, translating
// native filesystem notifications into Events on eventTx until ctlRx yields
// false or is closed, then releases all platform resources and returns
// whether it exited cleanly.
//
// This is the one function every adapter implements (spec.md §4.5); on
// Linux, the dispatcher in adapter_linux.go selects which
// privilege-specific implementation backs it.

// now returns the duration since the Unix epoch, or zero if the clock is
// unavailable — every adapter stamps events with this.
func now() time.Duration {
	d := time.Now().Sub(time.Unix(0, 0))
	if d < 0 {
		return 0
	}
	return d
}
