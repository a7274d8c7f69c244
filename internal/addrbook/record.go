package addrbook

import (
	"github.com/latticenet/peerbook/pkg/peeraddress"
)

// State is a record's position in the connection lifecycle.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateTried
	StateFailed
	StateBanned
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTried:
		return "tried"
	case StateFailed:
		return "failed"
	case StateBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Record is the authoritative per-address entity the book tracks.
type Record struct {
	Address peeraddress.PeerAddress
	State   State

	Routes    []peeraddress.Route // RTC only
	BestRoute int                 // index into Routes, -1 if none

	FailedAttempts int

	// BannedUntil is the ms timestamp the ban lifts at; -1 means not banned.
	BannedUntil int64
	// BanBackoff is the ms duration applied on the next self-ban, doubling
	// per ban up to MaxFailedBackoff.
	BanBackoff int64

	AddedAt  int64
	LastSeen int64

	// connectingTransitionedAt records when the record most recently entered
	// CONNECTING, for the optional stuck-CONNECTING sweep.
	connectingTransitionedAt int64
}

// newRecord builds a fresh NEW record for addr at time now (ms).
func newRecord(addr peeraddress.PeerAddress, now int64, initialBackoff int64) *Record {
	return &Record{
		Address:     addr,
		State:       StateNew,
		BestRoute:   -1,
		BannedUntil: -1,
		BanBackoff:  initialBackoff,
		AddedAt:     now,
		LastSeen:    now,
	}
}

// hasRoutes reports whether this record currently holds any RTC route.
func (r *Record) hasRoutes() bool {
	return len(r.Routes) > 0
}

// recomputeBestRoute refreshes BestRoute after routes were mutated.
func (r *Record) recomputeBestRoute() {
	r.BestRoute = peeraddress.BestRoute(r.Routes)
}

// addOrMergeRoute appends a route through ch, or refreshes the existing one
// if ch already has a route on this record, then recomputes BestRoute.
func (r *Record) addOrMergeRoute(route peeraddress.Route) {
	for i, existing := range r.Routes {
		if existing.SignalChannel != nil && existing.SignalChannel.Equal(route.SignalChannel) {
			r.Routes[i] = route
			r.recomputeBestRoute()
			return
		}
	}
	r.Routes = append(r.Routes, route)
	r.recomputeBestRoute()
}

// dropRoutesByChannel removes every route relayed through ch and recomputes
// BestRoute. It reports whether any route was removed.
func (r *Record) dropRoutesByChannel(ch peeraddress.Channel) bool {
	if ch == nil || len(r.Routes) == 0 {
		return false
	}
	kept := r.Routes[:0]
	removed := false
	for _, route := range r.Routes {
		if route.SignalChannel != nil && route.SignalChannel.Equal(ch) {
			removed = true
			continue
		}
		kept = append(kept, route)
	}
	r.Routes = kept
	if removed {
		r.recomputeBestRoute()
	}
	return removed
}

// dropBestRoute removes the current best route and recomputes BestRoute. It
// reports whether a route was removed.
func (r *Record) dropBestRoute() bool {
	if r.BestRoute < 0 || r.BestRoute >= len(r.Routes) {
		return false
	}
	r.Routes = append(r.Routes[:r.BestRoute], r.Routes[r.BestRoute+1:]...)
	r.recomputeBestRoute()
	return true
}

// isBanned reports whether the record is currently in BANNED state. A BANNED
// seed reports true here: callers that need the public IsBanned(address)
// semantics (false for seeds) must check Address.IsSeed() themselves.
func (r *Record) isBanned() bool {
	return r.State == StateBanned
}
