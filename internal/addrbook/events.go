package addrbook

import "github.com/latticenet/peerbook/pkg/peeraddress"

// EventKind tags which lifecycle transition an Event carries. Dispatch on
// Kind, never on reflecting over which method invoked the transition — a
// tagged variant is exhaustively switchable at compile time, a dynamic
// method dispatch isn't.
type EventKind int

const (
	EventAdd EventKind = iota
	EventConnecting
	EventConnected
	EventDisconnected
	EventFailure
	EventUnroutable
	EventBan
)

// Event is the tagged variant handed to the state machine for every network
// occurrence the book reacts to.
type Event struct {
	Kind    EventKind
	Address peeraddress.PeerAddress
	Channel peeraddress.Channel

	// ByRemote is set on EventDisconnected.
	ByRemote bool
	// BanDuration is set on EventBan; <= 0 means "use DefaultBanTime".
	BanDuration int64 // ms
}
