package addrbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/latticenet/peerbook/internal/config/addrbook"
	"github.com/latticenet/peerbook/pkg/peeraddress"
)

func newTestBook(clock *manualClock) *Book {
	cfg := cfgpkg.DefaultConfig()
	cfg.Now = clock.now
	return New(cfg)
}

func key(b byte) peeraddress.IdentityKey {
	var k peeraddress.IdentityKey
	k[0] = b
	return k
}

// S1: WS admission and replacement.
func TestWSAdmissionAndReplacement(t *testing.T) {
	clock := &manualClock{ms: 1_000_000}
	book := newTestBook(clock)
	k := key(1)

	var notifications [][]peeraddress.PeerAddress
	require.NoError(t, book.Subscribe(func(addrs []peeraddress.PeerAddress, self bool) {
		notifications = append(notifications, addrs)
	}))

	book.AdmitSeeds(nil) // no seeds configured for this node

	book.Add(nil, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 1000})
	book.WaitAsync()
	assert.Len(t, notifications, 1)

	ch := peeraddress.NewChannelID()
	book.Add(ch, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 500})
	book.WaitAsync()
	assert.Len(t, notifications, 1, "older timestamp must be rejected, no new notification")

	book.Add(ch, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 2000})
	book.WaitAsync()
	assert.Len(t, notifications, 2, "newer timestamp replaces and notifies")
}

// S2: self-ban after the WS failure budget, with back-off doubling on
// repeat. Restoring from ban resets FailedAttempts to 0, so reaching the
// budget again after restore takes three more failures, same as the first
// round.
func TestSelfBanAfterFailureBudget(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(2)
	addr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 0}

	book.Add(nil, addr)
	book.Connecting(addr)
	book.Failure(addr)
	book.Failure(addr)
	book.Failure(addr)

	rec, ok := book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, StateBanned, rec.State)
	assert.Equal(t, int64(15_000), rec.BannedUntil)

	clock.advance(15_000)
	book.runHousekeepingPass()
	rec, ok = book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, StateNew, rec.State)
	assert.Equal(t, 0, rec.FailedAttempts)

	book.Connecting(addr)
	book.Failure(addr)
	book.Failure(addr)
	book.Failure(addr)
	rec, ok = book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, StateBanned, rec.State)
	assert.Equal(t, clock.ms+30_000, rec.BannedUntil, "backoff doubled from 15s to 30s")
}

// S3: RTC distance loop cut.
func TestRTCDistanceLoopCut(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(3)
	ch1 := peeraddress.NewChannelID()

	// First get the peer known with a route through ch1 at a low distance.
	book.Add(ch1, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-1", Distance: 0})
	rec, ok := book.store.get(k)
	require.True(t, ok)
	require.Len(t, rec.Routes, 1)

	// Now relay it back in at distance 4 through the same channel: post
	// increment distance=5 > MaxDistance=4, rejected, and the existing
	// route through ch1 is dropped (loop prevention).
	book.Add(ch1, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-1", Distance: 4})

	rec, ok = book.store.get(k)
	require.True(t, ok)
	assert.Empty(t, rec.Routes, "route through the offending channel must be dropped")
}

// S4: connected lock.
func TestConnectedLock(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(4)
	addr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 0}

	ch := peeraddress.NewChannelID()
	book.Connected(ch, addr)

	var notifications int
	require.NoError(t, book.Subscribe(func(addrs []peeraddress.PeerAddress, self bool) { notifications++ }))

	book.Add(ch, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k, Timestamp: 1000, Services: 7})
	book.WaitAsync()

	rec, ok := book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, StateConnected, rec.State)
	assert.Equal(t, peeraddress.ServiceMask(0), rec.Address.Services, "services must not be overwritten while CONNECTED")
	assert.Zero(t, notifications, "connected-lock update must not be announced as new")
}

// S5: seed never disappears.
func TestSeedNeverDisappears(t *testing.T) {
	clock := &manualClock{ms: 1000}
	book := newTestBook(clock)
	k := key(5)
	seed := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k}
	book.AdmitSeeds([]peeraddress.PeerAddress{seed})

	book.Ban(seed, 1)
	clock.advance(1)
	book.runHousekeepingPass()
	rec, ok := book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, StateNew, rec.State, "seeds are always re-tried after a ban expires")

	book.remove(k)
	rec, ok = book.store.get(k)
	require.True(t, ok, "seed must remain in the store")
	assert.Equal(t, StateBanned, rec.State)
	assert.False(t, book.IsBanned(seed), "IsBanned always reports false for seeds")
}

// S6: unroutable on non-best channel.
func TestUnroutableOnNonBestChannel(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(6)
	chA := peeraddress.NewChannelID()
	chB := peeraddress.NewChannelID()

	book.Add(chA, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-6", Distance: 0})
	clock.advance(1)
	book.Add(chB, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-6b", Distance: 1})

	rec, ok := book.store.get(k)
	require.True(t, ok)
	require.Len(t, rec.Routes, 2)
	bestBefore := rec.Routes[rec.BestRoute]
	assert.True(t, bestBefore.SignalChannel.Equal(chA), "lowest distance wins as best route")

	book.Unroutable(chB, rec.Address)
	rec, ok = book.store.get(k)
	require.True(t, ok)
	require.Len(t, rec.Routes, 2, "non-best channel unroutable must not change routes")

	book.Unroutable(chA, rec.Address)
	rec, ok = book.store.get(k)
	require.True(t, ok)
	require.Len(t, rec.Routes, 1)
	assert.True(t, rec.Routes[rec.BestRoute].SignalChannel.Equal(chB), "best route recomputed to the remaining one")
}

func TestSelfGuardRejectsOwnAddress(t *testing.T) {
	clock := &manualClock{ms: 0}
	cfg := cfgpkg.DefaultConfig()
	cfg.Now = clock.now
	selfKey := key(9)
	cfg.SelfAddress = selfKey
	book := New(cfg)

	book.Add(nil, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: selfKey})
	assert.Equal(t, 0, book.Size())
}

func TestSeedSelfGuardAppliesDuringAdmitSeeds(t *testing.T) {
	clock := &manualClock{ms: 0}
	cfg := cfgpkg.DefaultConfig()
	cfg.Now = clock.now
	selfKey := key(10)
	cfg.SelfAddress = selfKey
	book := New(cfg)

	book.AdmitSeeds([]peeraddress.PeerAddress{{Protocol: peeraddress.ProtocolWS, Key: selfKey}})
	assert.Equal(t, 0, book.Size(), "a node must never be able to seed itself")
}

func TestFutureTimestampRejected(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(11)
	book.Add(peeraddress.NewChannelID(), peeraddress.PeerAddress{
		Protocol:  peeraddress.ProtocolWS,
		Key:       k,
		Timestamp: time.Hour.Milliseconds(), // far beyond MaxTimestampDrift
	})
	assert.Equal(t, 0, book.Size())
}

func TestAgeGuardBypassedForSeeds(t *testing.T) {
	clock := &manualClock{ms: 10 * time.Hour.Milliseconds()}
	book := newTestBook(clock)
	k := key(12)
	// channel == nil (seed path) skips the age guard, and a seed's pinned
	// timestamp of 0 never counts as aged either, so the seed is admitted
	// even with "now" far past MAX_AGE_WS.
	book.AdmitSeeds([]peeraddress.PeerAddress{{Protocol: peeraddress.ProtocolWS, Key: k}})
	assert.Equal(t, 1, book.Size())
}

func TestConnectingCountInvariant(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	k := key(13)
	addr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: k}

	book.Add(nil, addr)
	book.Connecting(addr)
	assert.Equal(t, 1, book.ConnectingCount())

	// Ban while CONNECTING must still decrement the counter.
	book.Ban(addr, 1000)
	assert.Equal(t, 0, book.ConnectingCount())
}

// TestDisconnectedRevokesRoutesStoreWide covers a signaling channel shared by
// several RTC peers: tearing it down must drop the route it carried on every
// RTC record, not just the record for the peer that was directly
// disconnected, and remove (or seed-ban) any record left with no route.
func TestDisconnectedRevokesRoutesStoreWide(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	chShared := peeraddress.NewChannelID()
	chOther := peeraddress.NewChannelID()

	// A's only route is chShared: it must be removed once chShared dies.
	book.Add(chShared, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(10), SignalID: "a"})

	// B has a second route through chOther: it must survive, minus the
	// chShared route.
	book.Add(chShared, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(11), SignalID: "b"})
	book.Add(chOther, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(11), SignalID: "b"})

	// D is a seed whose only route is chShared: it must be banned, not
	// deleted, once routeless.
	book.Add(chShared, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(13), SignalID: "d"})
	recD, ok := book.store.get(key(13))
	require.True(t, ok)
	recD.Address.Seed = true

	recB, ok := book.store.get(key(11))
	require.True(t, ok)
	require.Len(t, recB.Routes, 2, "precondition: B has routes through both channels")

	// C is the peer that is actually disconnecting, connected over chShared.
	addrC := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolWS, Key: key(14)}
	book.Connected(chShared, addrC)

	book.Disconnected(chShared, addrC, false)

	_, ok = book.store.get(key(10))
	assert.False(t, ok, "A's only route died with the channel, A must be removed")

	recB, ok = book.store.get(key(11))
	require.True(t, ok, "B still has a route through chOther")
	require.Len(t, recB.Routes, 1)
	assert.True(t, recB.Routes[0].SignalChannel.Equal(chOther))

	recD, ok = book.store.get(key(13))
	require.True(t, ok, "seeds are banned, never deleted")
	assert.Equal(t, StateBanned, recD.State)
	assert.Empty(t, recD.Routes)

	recC, ok := book.store.get(key(14))
	require.True(t, ok, "C is not RTC, the sweep doesn't touch it directly")
	assert.Equal(t, StateTried, recC.State, "retained: not removed by remote, not DUMB")
}

// TestConnectedCreatesRTCRouteOnMissingRecord covers an RTC peer first seen
// through a connected event rather than add(): the create branch must record
// a route the same way the existing-record branch does.
func TestConnectedCreatesRTCRouteOnMissingRecord(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	ch := peeraddress.NewChannelID()
	addr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(20), SignalID: "sig-20"}

	book.Connected(ch, addr)

	rec, ok := book.store.get(key(20))
	require.True(t, ok)
	assert.Equal(t, StateConnected, rec.State)
	require.Len(t, rec.Routes, 1, "connected() must record a route for a newly created RTC record")
	assert.True(t, rec.Routes[0].SignalChannel.Equal(ch))
}

// TestAddReindexesSignalIDOnReplacement covers rule 8 of add(): replacing an
// RTC record's stored address with one carrying a different SignalID must
// keep the store's secondary index in sync.
func TestAddReindexesSignalIDOnReplacement(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)
	ch := peeraddress.NewChannelID()
	k := key(30)

	book.Add(ch, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-old"})
	_, ok := book.store.getBySignalID("sig-old")
	require.True(t, ok)

	book.Add(ch, peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: k, SignalID: "sig-new"})

	rec, ok := book.store.get(k)
	require.True(t, ok)
	assert.Equal(t, peeraddress.SignalID("sig-new"), rec.Address.SignalID)

	_, ok = book.store.getBySignalID("sig-old")
	assert.False(t, ok, "stale signalID entry must be dropped")

	bySignal, ok := book.store.getBySignalID("sig-new")
	require.True(t, ok, "new signalID must be indexed")
	assert.Same(t, rec, bySignal)
}

// TestIdempotentReAddProducesNoDuplicateNotification covers the idempotence
// law for RTC and DUMB, which (unlike WS) have no timestamp guard of their
// own: a byte-identical re-add must not fire a second added notification.
func TestIdempotentReAddProducesNoDuplicateNotification(t *testing.T) {
	clock := &manualClock{ms: 0}
	book := newTestBook(clock)

	var notifications [][]peeraddress.PeerAddress
	require.NoError(t, book.Subscribe(func(addrs []peeraddress.PeerAddress, self bool) {
		notifications = append(notifications, addrs)
	}))

	ch := peeraddress.NewChannelID()
	rtcAddr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolRTC, Key: key(40), SignalID: "sig-40"}
	book.Add(ch, rtcAddr)
	book.WaitAsync()
	require.Len(t, notifications, 1)

	book.Add(ch, rtcAddr)
	book.WaitAsync()
	assert.Len(t, notifications, 1, "byte-identical RTC re-add must not notify twice")

	dumbAddr := peeraddress.PeerAddress{Protocol: peeraddress.ProtocolDumb, Key: key(41)}
	book.Add(ch, dumbAddr)
	book.WaitAsync()
	require.Len(t, notifications, 2)

	book.Add(ch, dumbAddr)
	book.WaitAsync()
	assert.Len(t, notifications, 2, "byte-identical DUMB re-add must not notify twice")
}
