package sync

// State describes where the sync engine is in its lifecycle.
type State int

const (
	// StateIdle means the scheduling loop hasn't been started.
	StateIdle State = iota

	// StateWaiting means the loop is running with no download pass in flight.
	StateWaiting

	// StateSyncing means a download pass is executing. At most one pass is
	// ever in flight.
	StateSyncing

	// StateStopped means the loop has been told to exit. A pass already in
	// flight still runs to completion. The engine is re-enterable via
	// StartSync.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateSyncing:
		return "syncing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
