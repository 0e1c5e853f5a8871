// ABOUTME: Engine to UI event notifications
// ABOUTME: Listener interface plus function and no-op adapters
package relay

// Listener receives playback events. Methods are called from engine
// goroutines; implementations marshal onto their own context and must
// not block for long.
type Listener interface {
	// OnDurationKnown is called once when the header carries a duration
	OnDurationKnown(ms int64)

	// OnProgress is called about four times a second with the position
	OnProgress(ms int64)

	// OnStreamEnded is called when the session ends without Shutdown
	// having been requested
	OnStreamEnded()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	DurationKnown func(ms int64)
	Progress      func(ms int64)
	StreamEnded   func()
}

func (f ListenerFuncs) OnDurationKnown(ms int64) {
	if f.DurationKnown != nil {
		f.DurationKnown(ms)
	}
}

func (f ListenerFuncs) OnProgress(ms int64) {
	if f.Progress != nil {
		f.Progress(ms)
	}
}

func (f ListenerFuncs) OnStreamEnded() {
	if f.StreamEnded != nil {
		f.StreamEnded()
	}
}

// NopListener ignores every event
type NopListener struct{}

func (NopListener) OnDurationKnown(int64) {}
func (NopListener) OnProgress(int64)      {}
func (NopListener) OnStreamEnded()        {}
