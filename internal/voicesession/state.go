package voicesession

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Active reports whether a connection attempt or session is in progress.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected
}

type StateFunc func(state State)
