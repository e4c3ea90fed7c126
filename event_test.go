package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWhatStringRoundTrip(t *testing.T) {
	for _, w := range []What{Rename, Modify, Create, Destroy, Owner, Other} {
		assert.Equal(t, w, ParseWhat(w.String()))
	}
}

func TestWhatParseUnknown(t *testing.T) {
	assert.Equal(t, Other, ParseWhat("not-a-real-what"))
}

func TestKindStringRoundTrip(t *testing.T) {
	for _, k := range []Kind{Dir, File, HardLink, SymLink, Watcher, KindOther} {
		assert.Equal(t, k, ParseKind(k.String()))
	}
}

func TestKindParseUnknown(t *testing.T) {
	assert.Equal(t, KindOther, ParseKind("not-a-real-kind"))
}

func TestEventIsSentinel(t *testing.T) {
	assert.True(t, sentinel.IsSentinel())
	assert.False(t, Event{Path: "/tmp/x", What: Create, Kind: File}.IsSentinel())
}

func TestEventStringTerminatesWithCommaUnlessSentinel(t *testing.T) {
	e := Event{Path: "/tmp/x", What: Create, Kind: File, When: 5 * time.Nanosecond}
	assert.Regexp(t, `,$`, e.String())
	assert.Regexp(t, `[^,]$`, sentinel.String())
}

func TestEventPredicates(t *testing.T) {
	e := Event{What: Create, Kind: Dir}
	assert.True(t, e.IsCreate())
	assert.True(t, e.IsDir())
	assert.False(t, e.IsDestroy())
	assert.False(t, e.IsFile())
}
