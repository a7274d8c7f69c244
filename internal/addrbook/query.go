package addrbook

import (
	"sort"

	"github.com/latticenet/peerbook/pkg/peeraddress"
)

// ProtocolMask is a bitmask of protocols a query should return.
type ProtocolMask uint8

const (
	ProtocolMaskWS ProtocolMask = 1 << iota
	ProtocolMaskRTC
	ProtocolMaskDumb
)

func protocolBit(p peeraddress.Protocol) ProtocolMask {
	switch p {
	case peeraddress.ProtocolWS:
		return ProtocolMaskWS
	case peeraddress.ProtocolRTC:
		return ProtocolMaskRTC
	case peeraddress.ProtocolDumb:
		return ProtocolMaskDumb
	default:
		return 0
	}
}

// Match reports whether protocol p is selected by this mask.
func (m ProtocolMask) Match(p peeraddress.Protocol) bool {
	return m&protocolBit(p) != 0
}

// DefaultMaxAddresses is the cap a query() uses when the caller passes 0.
const DefaultMaxAddresses = 1000

// query performs filtered, scored, capped snapshot selection over the
// store. It is called with b.mu already held.
func (b *Book) query(protocolMask ProtocolMask, serviceMask peeraddress.ServiceMask, maxAddresses int) []peeraddress.PeerAddress {
	if maxAddresses <= 0 {
		maxAddresses = DefaultMaxAddresses
	}
	now := b.cfg.NowMs()

	eligible := make([]*Record, 0, b.store.size())
	for _, rec := range b.store.values() {
		if rec.State == StateBanned || rec.State == StateFailed {
			continue
		}
		if rec.Address.IsSeed() {
			continue
		}
		if !protocolMask.Match(rec.Address.Protocol) {
			continue
		}
		if !rec.Address.Services.Has(serviceMask) {
			continue
		}
		// A CONNECTED record is refreshed before the age check: an active
		// connection proves liveness regardless of how stale the stored
		// timestamp happens to be, so it must survive the filter rather
		// than aging out from under an open connection.
		if rec.State == StateConnected {
			rec.Address.Timestamp = now
		} else if rec.Address.ExceedsAge(now, b.cfg.MaxAgeWS, b.cfg.MaxAgeRTC, b.cfg.MaxAgeDumb) {
			continue
		}
		eligible = append(eligible, rec)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, c := eligible[i], eligible[j]
		if a.FailedAttempts != c.FailedAttempts {
			return a.FailedAttempts < c.FailedAttempts
		}
		if a.LastSeen != c.LastSeen {
			return a.LastSeen > c.LastSeen
		}
		return routeDistance(a) < routeDistance(c)
	})

	if len(eligible) > maxAddresses {
		eligible = eligible[:maxAddresses]
	}

	out := make([]peeraddress.PeerAddress, 0, len(eligible))
	for _, rec := range eligible {
		out = append(out, rec.Address)
	}
	b.metrics.recordQuery(len(out))
	return out
}

// routeDistance returns an RTC record's best-route distance, or 0 for
// non-RTC records (distance plays no role in their ranking).
func routeDistance(rec *Record) int {
	if rec.BestRoute < 0 || rec.BestRoute >= len(rec.Routes) {
		return 0
	}
	return rec.Routes[rec.BestRoute].Distance
}
