package watch

import (
	"fmt"
	"time"
)

// What describes the kind of change that produced an [Event].
type What int

const (
	Rename What = iota
	Modify
	Create
	Destroy
	Owner
	Other
)

// String returns the lowercase snake_case form used by [Event.String] and
// understood by [ParseWhat].
func (w What) String() string {
	switch w {
	case Rename:
		return "rename"
	case Modify:
		return "modify"
	case Create:
		return "create"
	case Destroy:
		return "destroy"
	case Owner:
		return "owner"
	default:
		return "other"
	}
}

// ParseWhat parses the textual form produced by [What.String]. Any
// unrecognized string yields [Other].
func ParseWhat(s string) What {
	switch s {
	case "rename":
		return Rename
	case "modify":
		return Modify
	case "create":
		return Create
	case "destroy":
		return Destroy
	case "owner":
		return Owner
	default:
		return Other
	}
}

// Kind describes the filesystem object type an [Event] refers to.
type Kind int

const (
	Dir Kind = iota
	File
	HardLink
	SymLink
	Watcher
	KindOther
)

// String returns the lowercase snake_case form used by [Event.String] and
// understood by [ParseKind].
func (k Kind) String() string {
	switch k {
	case Dir:
		return "dir"
	case File:
		return "file"
	case HardLink:
		return "hard_link"
	case SymLink:
		return "sym_link"
	case Watcher:
		return "watcher"
	default:
		return "other"
	}
}

// ParseKind parses the textual form produced by [Kind.String]. Any
// unrecognized string yields [KindOther]. The [Watcher] kind only ever
// appears in practice via the end-of-stream sentinel; parsing "watcher"
// back still round-trips it for completeness.
func ParseKind(s string) Kind {
	switch s {
	case "dir":
		return Dir
	case "file":
		return File
	case "hard_link":
		return HardLink
	case "sym_link":
		return SymLink
	case "watcher":
		return Watcher
	default:
		return KindOther
	}
}

// Event is an immutable filesystem change record. Two events are equal iff
// all four fields are equal.
type Event struct {
	Path string
	What What
	Kind Kind
	When time.Duration
}

// IsCreate, IsDestroy, IsModify, and IsRename report e.What, in the style
// of fsnotify's Event.Has.
func (e Event) IsCreate() bool  { return e.What == Create }
func (e Event) IsDestroy() bool { return e.What == Destroy }
func (e Event) IsModify() bool  { return e.What == Modify }
func (e Event) IsRename() bool  { return e.What == Rename }

// IsDir and IsFile report e.Kind.
func (e Event) IsDir() bool  { return e.Kind == Dir }
func (e Event) IsFile() bool { return e.Kind == File }

// sentinel is the end-of-stream marker: What=Destroy, Kind=Watcher. The
// worker started by [Watch] pushes it exactly once, after the adapter
// returns from a clean shutdown; consumers may use it to
// recognize a graceful close ahead of the channel actually draining.
var sentinel = Event{What: Destroy, Kind: Watcher}

// IsSentinel reports whether e is the end-of-stream marker.
func (e Event) IsSentinel() bool { return e.What == Destroy && e.Kind == Watcher }

// String renders e as a single JSON-like object, terminated with a comma
// unless e is the end-of-stream sentinel:
//
//	"<nanos>":{"where":"<path>","what":"<what>","kind":"<kind>"}<,>
func (e Event) String() string {
	comma := ","
	if e.IsSentinel() {
		comma = ""
	}
	return fmt.Sprintf(`"%d":{"where":"%s","what":"%s","kind":"%s"}%s`,
		e.When.Nanoseconds(), e.Path, e.What, e.Kind, comma)
}
