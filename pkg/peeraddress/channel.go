package peeraddress

import "github.com/google/uuid"

// Channel is an opaque handle for a live connection. Implementations live
// outside this module (socket, WebRTC data channel, ...); the book only ever
// compares channels for identity. Whether a disconnect was remote is passed
// to the book separately, not read from the channel.
type Channel interface {
	// ID returns a stable identifier for this channel instance.
	ID() string
	// Equal reports whether other refers to the same underlying connection.
	Equal(other Channel) bool
}

// ChannelID is a minimal Channel implementation backed by a random ID,
// sufficient for tests and for callers (e.g. the CLI) with no richer handle.
type ChannelID string

// NewChannelID returns a fresh random channel identity.
func NewChannelID() ChannelID {
	return ChannelID(uuid.NewString())
}

// ID implements Channel.
func (c ChannelID) ID() string { return string(c) }

// Equal implements Channel.
func (c ChannelID) Equal(other Channel) bool {
	o, ok := other.(ChannelID)
	return ok && c == o
}
