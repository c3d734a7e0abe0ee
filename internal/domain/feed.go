package domain

import "time"

// ConnectivityState is the feed connection state reported upward.
type ConnectivityState string

const (
	StateConnecting        ConnectivityState = "connecting"
	StateConnected         ConnectivityState = "connected"
	StateDataUpdate        ConnectivityState = "data_update"
	StateDisconnectedError ConnectivityState = "disconnected_error"
	StateDisconnectedClean ConnectivityState = "disconnected_clean"
)

// ConnectivityEvent is emitted by a feed on every state transition.
type ConnectivityEvent struct {
	State   ConnectivityState `json:"state"`
	Source  string            `json:"source"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}

// TriggerReason says why a recompute pass was requested.
type TriggerReason int

const (
	TriggerBookUpdate TriggerReason = iota
	TriggerInputChange
)

// String implements fmt.Stringer.
func (r TriggerReason) String() string {
	switch r {
	case TriggerBookUpdate:
		return "book_update"
	case TriggerInputChange:
		return "input_change"
	default:
		return "unknown"
	}
}

// BookEvent is published by the ingestion path after each applied update.
// Consumers read the book itself; the event only says "something changed".
type BookEvent struct {
	Symbol    string
	Sequence  int64
	Timestamp time.Time
}

// FeedStatus is the connectivity summary kept by the status tracker.
type FeedStatus struct {
	State       ConnectivityState `json:"state"`
	Source      string            `json:"source"`
	Message     string            `json:"message,omitempty"`
	Since       time.Time         `json:"since"`
	LastDataAt  time.Time         `json:"last_data_at,omitempty"`
	DataUpdates uint64            `json:"data_updates"`
	Disconnects uint64            `json:"disconnects"`
}
