// Package peeraddress defines the external value types a peer address book
// consumes: the address itself, its transport protocol, and the channel
// handle a live connection is represented by. Encoding, cryptographic
// identity, and socket I/O all live outside this package.
package peeraddress

import "time"

// Protocol identifies which transport a PeerAddress was learned over.
type Protocol int

const (
	// ProtocolWS is a direct TCP/WebSocket transport.
	ProtocolWS Protocol = iota
	// ProtocolRTC is WebRTC routed over a signaling channel.
	ProtocolRTC
	// ProtocolDumb is a one-way client that cannot accept inbound connections.
	ProtocolDumb
)

func (p Protocol) String() string {
	switch p {
	case ProtocolWS:
		return "ws"
	case ProtocolRTC:
		return "rtc"
	case ProtocolDumb:
		return "dumb"
	default:
		return "unknown"
	}
}

// MaxAge returns the age a PeerAddress of this protocol may reach before
// ExceedsAge starts reporting true, using the given configured durations.
func (p Protocol) MaxAge(wsMaxAge, rtcMaxAge, dumbMaxAge time.Duration) time.Duration {
	switch p {
	case ProtocolWS:
		return wsMaxAge
	case ProtocolRTC:
		return rtcMaxAge
	case ProtocolDumb:
		return dumbMaxAge
	default:
		return dumbMaxAge
	}
}

// IdentityKey is the stable identity of a peer: the hash of its public key.
// Two addresses are equal iff their identity keys match.
type IdentityKey [32]byte

// ServiceMask is a bitmask of advertised services.
type ServiceMask uint64

// Has reports whether every bit set in want is also set in m.
func (m ServiceMask) Has(want ServiceMask) bool {
	return m&want == want
}

// SignalID identifies the signaling channel endpoint an RTC peer is reachable
// through. It is meaningless for WS/DUMB addresses.
type SignalID string

// PeerAddress is an (almost) immutable value identifying a peer: its
// transport, identity, optional network location, and the metadata the book
// needs to age it out, rank it, and — for RTC — route to it.
//
// Distance is the one mutable field: _add increments it by one hop every time
// the address is relayed through another peer's signaling channel, per the
// RTC loop-avoidance rule.
type PeerAddress struct {
	Protocol    Protocol
	Key         IdentityKey
	NetAddress  string // optional; empty means "unknown, inherit from known record"
	Timestamp   int64  // ms since epoch; 0 marks a seed
	Services    ServiceMask
	SignalID    SignalID // RTC only
	Distance    int      // RTC only; hops from this node through signaling
	Seed        bool     // permanent attribute set at construction
}

// Equal reports whether two addresses refer to the same peer identity.
func (a PeerAddress) Equal(other PeerAddress) bool {
	return a.Key == other.Key
}

// IsSeed reports whether this address was admitted as a bootstrap seed.
// Seeds are never evicted and their timestamp is pinned to 0 forever.
func (a PeerAddress) IsSeed() bool {
	return a.Seed
}

// ExceedsAge reports whether the address has aged past its protocol's
// MAX_AGE, given the wall-clock now (ms) and the configured per-protocol
// durations.
func (a PeerAddress) ExceedsAge(nowMs int64, wsMaxAge, rtcMaxAge, dumbMaxAge time.Duration) bool {
	if a.Timestamp == 0 {
		return false
	}
	maxAge := a.Protocol.MaxAge(wsMaxAge, rtcMaxAge, dumbMaxAge)
	age := time.Duration(nowMs-a.Timestamp) * time.Millisecond
	return age > maxAge
}

// WithNetAddress returns a copy of a with NetAddress filled in if it was
// previously empty, never overwriting a known non-empty value.
func (a PeerAddress) WithNetAddress(known string) PeerAddress {
	if a.NetAddress == "" {
		a.NetAddress = known
	}
	return a
}
