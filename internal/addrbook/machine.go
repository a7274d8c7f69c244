package addrbook

import (
	"github.com/latticenet/peerbook/pkg/peeraddress"
	"github.com/latticenet/peerbook/pkg/peerlog"
)

// handle dispatches a single Event against the store under b.mu, already
// held by the caller. It returns the set of addresses that became newly
// queryable as a result (used by the caller to batch the added notification).
func (b *Book) handle(ev Event) []peeraddress.PeerAddress {
	switch ev.Kind {
	case EventAdd:
		if b.add(ev.Channel, ev.Address) {
			b.metrics.recordTransition(ev.Kind, "applied")
			return []peeraddress.PeerAddress{ev.Address}
		}
		b.metrics.recordTransition(ev.Kind, "rejected")
		return nil
	case EventConnecting:
		b.connecting(ev.Address)
	case EventConnected:
		b.connected(ev.Channel, ev.Address)
	case EventDisconnected:
		b.disconnected(ev.Channel, ev.Address, ev.ByRemote)
	case EventFailure:
		b.failure(ev.Address)
	case EventUnroutable:
		b.unroutable(ev.Channel, ev.Address)
	case EventBan:
		b.ban(ev.Address, ev.BanDuration)
	}
	return nil
}

// add runs the admission rules for an incoming address and reports whether
// it is now genuinely new (and so should be announced via the added event).
func (b *Book) add(channel peeraddress.Channel, addr peeraddress.PeerAddress) bool {
	now := b.cfg.NowMs()

	// 1. Self-guard.
	if addr.Key == b.cfg.SelfAddress {
		peerlog.Debugf(b.log, "addrbook add reject=self key=%x", addr.Key)
		return false
	}

	// 2. Age guard — only applies when arriving over a live channel; seeds
	// flow in with channel == nil and bypass it.
	if channel != nil && addr.ExceedsAge(now, b.cfg.MaxAgeWS, b.cfg.MaxAgeRTC, b.cfg.MaxAgeDumb) {
		peerlog.Debugf(b.log, "addrbook add reject=age key=%x protocol=%s", addr.Key, addr.Protocol)
		return false
	}

	// 3. Future-timestamp guard.
	if addr.Timestamp > now+b.cfg.MaxTimestampDrift.Milliseconds() {
		peerlog.Debugf(b.log, "addrbook add reject=drift key=%x ts=%d", addr.Key, addr.Timestamp)
		return false
	}

	// 4. RTC hop accounting.
	if addr.Protocol == peeraddress.ProtocolRTC {
		addr.Distance++
		if addr.Distance > b.cfg.MaxDistance {
			if existing, ok := b.store.get(addr.Key); ok {
				existing.dropRoutesByChannel(channel)
			}
			peerlog.Debugf(b.log, "addrbook add reject=distance key=%x distance=%d", addr.Key, addr.Distance)
			return false
		}
	}

	existing, known := b.store.get(addr.Key)

	// 5. Known address merge.
	if known {
		if existing.isBanned() {
			peerlog.Debugf(b.log, "addrbook add reject=banned key=%x", addr.Key)
			return false
		}
		if existing.Address.IsSeed() {
			addr.Timestamp = 0
			addr.Seed = true
		}
		addr = addr.WithNetAddress(existing.Address.NetAddress)
		if addr.Protocol == peeraddress.ProtocolWS && existing.Address.Timestamp >= addr.Timestamp {
			peerlog.Debugf(b.log, "addrbook add reject=stale_ws key=%x", addr.Key)
			return false
		}
	}

	// 6. Creation or update.
	var rec *Record
	if !known {
		addr.Seed = channel == nil && addr.Timestamp == 0
		rec = newRecord(addr, now, b.cfg.InitialFailedBackoff.Milliseconds())
		b.store.add(rec)
		b.metrics.recordMutation("add")
		if addr.Protocol == peeraddress.ProtocolRTC && channel != nil {
			rec.addOrMergeRoute(peeraddress.Route{SignalChannel: channel, Distance: addr.Distance, Timestamp: now})
		}
		rec.LastSeen = now
		peerlog.Debugf(b.log, "addrbook add new key=%x protocol=%s", addr.Key, addr.Protocol)
		return true
	}

	rec = existing
	if addr.Protocol == peeraddress.ProtocolRTC && channel != nil {
		rec.addOrMergeRoute(peeraddress.Route{SignalChannel: channel, Distance: addr.Distance, Timestamp: now})
	}

	// 7. Connected lock: only allow filling a previously-missing netAddress.
	if rec.State == StateConnected {
		if rec.Address.NetAddress == "" && addr.NetAddress != "" {
			rec.Address.NetAddress = addr.NetAddress
		}
		rec.LastSeen = now
		return false
	}

	// 8. Otherwise replace the stored address with the merged incoming one.
	// WS already has an idempotence guard via the strict timestamp
	// comparison in rule 5 (a repeat carries the same timestamp, which gets
	// rejected as stale); RTC/DUMB have no such guard, so a byte-identical
	// re-add needs its own check here or it would report as newly added on
	// every repeat.
	if addr.Protocol != peeraddress.ProtocolWS && addr == rec.Address {
		rec.LastSeen = now
		peerlog.Debugf(b.log, "addrbook add unchanged key=%x protocol=%s", addr.Key, addr.Protocol)
		return false
	}

	// SignalID can change on replacement, so the secondary index needs
	// fixing up alongside it — store.add only ever indexes at creation.
	oldSignalID := rec.Address.SignalID
	rec.Address = addr
	b.store.reindexSignalID(rec, oldSignalID)
	rec.LastSeen = now
	peerlog.Debugf(b.log, "addrbook add updated key=%x protocol=%s", addr.Key, addr.Protocol)
	return true
}

// connecting moves a record into CONNECTING; ignored if the record is
// missing or not in an allowed prior state.
func (b *Book) connecting(addr peeraddress.PeerAddress) {
	rec, ok := b.store.get(addr.Key)
	if !ok {
		b.metrics.recordTransition(EventConnecting, "ignored")
		return
	}
	switch rec.State {
	case StateNew, StateTried, StateFailed:
		rec.State = StateConnecting
		rec.connectingTransitionedAt = b.cfg.NowMs()
		b.store.connectingCount++
		b.metrics.recordTransition(EventConnecting, "applied")
		peerlog.Debugf(b.log, "addrbook connecting key=%x", addr.Key)
	default:
		b.metrics.recordTransition(EventConnecting, "ignored")
	}
}

// connected moves a record into CONNECTED, creating it if missing (unless
// BANNED would have applied — but a missing record is never BANNED),
// resets failure state, and refreshes LastSeen.
func (b *Book) connected(channel peeraddress.Channel, addr peeraddress.PeerAddress) {
	now := b.cfg.NowMs()
	rec, ok := b.store.get(addr.Key)
	if !ok {
		rec = newRecord(addr, now, b.cfg.InitialFailedBackoff.Milliseconds())
		rec.State = StateConnected
		b.store.add(rec)
		b.metrics.recordMutation("add")
		if addr.Protocol == peeraddress.ProtocolRTC && channel != nil {
			rec.addOrMergeRoute(peeraddress.Route{SignalChannel: channel, Distance: addr.Distance, Timestamp: now})
		}
		b.metrics.recordTransition(EventConnected, "applied")
		peerlog.Debugf(b.log, "addrbook connected new key=%x", addr.Key)
		return
	}
	if rec.State == StateBanned {
		b.metrics.recordTransition(EventConnected, "ignored")
		return
	}
	wasConnecting := rec.State == StateConnecting
	rec.State = StateConnected
	rec.FailedAttempts = 0
	if wasConnecting {
		b.store.connectingCount--
	}
	rec.LastSeen = now
	if addr.Protocol == peeraddress.ProtocolRTC && channel != nil {
		rec.addOrMergeRoute(peeraddress.Route{SignalChannel: channel, Distance: addr.Distance, Timestamp: now})
	}
	b.metrics.recordTransition(EventConnected, "applied")
	peerlog.Debugf(b.log, "addrbook connected key=%x", addr.Key)
}

// disconnected handles a connection tear-down, including revoking every
// route relayed through the given channel, on every record, not just the
// disconnected peer's own.
func (b *Book) disconnected(channel peeraddress.Channel, addr peeraddress.PeerAddress, byRemote bool) {
	rec, ok := b.store.get(addr.Key)
	if !ok {
		b.metrics.recordTransition(EventDisconnected, "ignored")
		return
	}
	if rec.State != StateConnected {
		b.metrics.recordTransition(EventDisconnected, "ignored")
		return
	}

	if channel != nil {
		b.revokeRoutesByChannel(channel)
		// revokeRoutesByChannel may itself have removed or banned rec (it
		// is swept along with every other RTC record): re-check before
		// proceeding with the rest of the disconnect logic below.
		if cur, stillConnected := b.store.get(addr.Key); !stillConnected || cur.State != StateConnected {
			b.metrics.recordTransition(EventDisconnected, "removed_no_routes")
			peerlog.Debugf(b.log, "addrbook disconnected routeless key=%x", addr.Key)
			return
		}
	}

	rec.State = StateTried
	rec.LastSeen = b.cfg.NowMs()

	removeByRemote := byRemote && b.cfg.Online()
	if removeByRemote || addr.Protocol == peeraddress.ProtocolDumb {
		b.remove(rec.Address.Key)
		b.metrics.recordTransition(EventDisconnected, "removed")
		peerlog.Debugf(b.log, "addrbook disconnected removed key=%x by_remote=%v", addr.Key, byRemote)
		return
	}
	b.metrics.recordTransition(EventDisconnected, "retained")
	peerlog.Debugf(b.log, "addrbook disconnected retained key=%x", addr.Key)
}

// revokeRoutesByChannel drops the route through channel from every RTC
// record in the store (not just the record for the peer that was directly
// disconnected) — a single signaling channel can carry relayed routes to
// many peers, and all of them go stale the moment it dies. A record left
// with no remaining route is removed, under the same rules as remove()
// (seeds are banned rather than deleted).
func (b *Book) revokeRoutesByChannel(channel peeraddress.Channel) {
	for _, r := range b.store.values() {
		if r.Address.Protocol != peeraddress.ProtocolRTC {
			continue
		}
		if r.dropRoutesByChannel(channel) && !r.hasRoutes() {
			b.remove(r.Address.Key)
		}
	}
}

// failure increments the failure counter and self-bans once the protocol's
// budget is exhausted. A record already in FAILED is accepted too (not
// just CONNECTING/CONNECTED): a connection manager may report repeated
// failed dial attempts without an intervening connecting() event — three
// bare failure() calls in a row still need to accumulate toward the
// self-ban.
func (b *Book) failure(addr peeraddress.PeerAddress) {
	rec, ok := b.store.get(addr.Key)
	if !ok {
		b.metrics.recordTransition(EventFailure, "ignored")
		return
	}
	if rec.State != StateConnecting && rec.State != StateConnected && rec.State != StateFailed {
		b.metrics.recordTransition(EventFailure, "ignored")
		return
	}
	wasConnecting := rec.State == StateConnecting
	rec.State = StateFailed
	rec.FailedAttempts++
	if wasConnecting {
		b.store.connectingCount--
	}

	max := b.cfg.MaxFailedAttempts(rec.Address.Protocol)
	if rec.FailedAttempts >= max {
		b.selfBan(rec)
		b.metrics.recordTransition(EventFailure, "self_banned")
		peerlog.Warnf(b.log, "addrbook failure self_ban key=%x attempts=%d", addr.Key, rec.FailedAttempts)
		return
	}
	b.metrics.recordTransition(EventFailure, "applied")
	peerlog.Debugf(b.log, "addrbook failure key=%x attempts=%d", addr.Key, rec.FailedAttempts)
}

// selfBan transitions rec to BANNED using its current BanBackoff, then
// doubles BanBackoff for next time, capped at MaxFailedBackoff.
func (b *Book) selfBan(rec *Record) {
	now := b.cfg.NowMs()
	rec.State = StateBanned
	rec.BannedUntil = now + rec.BanBackoff
	rec.Routes = nil
	rec.BestRoute = -1
	next := rec.BanBackoff * 2
	if cap := b.cfg.MaxFailedBackoff.Milliseconds(); next > cap {
		next = cap
	}
	rec.BanBackoff = next
}

// unroutable is trusted only when reported on the current best route.
func (b *Book) unroutable(channel peeraddress.Channel, addr peeraddress.PeerAddress) {
	rec, ok := b.store.get(addr.Key)
	if !ok || !rec.hasRoutes() {
		b.metrics.recordTransition(EventUnroutable, "ignored")
		return
	}
	if rec.BestRoute < 0 || rec.BestRoute >= len(rec.Routes) {
		b.metrics.recordTransition(EventUnroutable, "ignored")
		return
	}
	best := rec.Routes[rec.BestRoute]
	if best.SignalChannel == nil || channel == nil || !best.SignalChannel.Equal(channel) {
		peerlog.Warnf(b.log, "addrbook unroutable non_best key=%x", addr.Key)
		b.metrics.recordTransition(EventUnroutable, "warned")
		return
	}
	rec.dropBestRoute()
	if !rec.hasRoutes() {
		b.remove(rec.Address.Key)
		b.metrics.recordTransition(EventUnroutable, "removed_no_routes")
		return
	}
	b.metrics.recordTransition(EventUnroutable, "applied")
}

// ban creates the record if missing and transitions it to BANNED.
// duration <= 0 means DefaultBanTime.
func (b *Book) ban(addr peeraddress.PeerAddress, duration int64) {
	now := b.cfg.NowMs()
	if duration <= 0 {
		duration = b.cfg.DefaultBanTime.Milliseconds()
	}
	rec, ok := b.store.get(addr.Key)
	if !ok {
		rec = newRecord(addr, now, b.cfg.InitialFailedBackoff.Milliseconds())
		b.store.add(rec)
		b.metrics.recordMutation("add")
	} else if rec.State == StateConnecting {
		b.store.connectingCount--
	}
	rec.State = StateBanned
	rec.BannedUntil = now + duration
	rec.Routes = nil
	rec.BestRoute = -1
	b.metrics.recordTransition(EventBan, "applied")
	peerlog.Warnf(b.log, "addrbook ban key=%x until=%d", addr.Key, rec.BannedUntil)
}

// remove drops a record from the store. Seeds are never deleted: they're
// banned for their current BanBackoff instead. A record whose prior state
// was CONNECTING always has connectingCount decremented, regardless of
// which branch it ends up in.
func (b *Book) remove(key peeraddress.IdentityKey) {
	rec, ok := b.store.get(key)
	if !ok {
		return
	}
	wasConnecting := rec.State == StateConnecting

	if rec.Address.IsSeed() {
		if wasConnecting {
			b.store.connectingCount--
		}
		now := b.cfg.NowMs()
		rec.State = StateBanned
		rec.BannedUntil = now + rec.BanBackoff
		rec.Routes = nil
		rec.BestRoute = -1
		peerlog.Debugf(b.log, "addrbook remove seed_banned key=%x", key)
		return
	}

	if rec.State == StateBanned {
		// Keep the entry so the ban is honored; connectingCount was already
		// adjusted when the ban was applied.
		return
	}

	if wasConnecting {
		b.store.connectingCount--
	}
	b.store.remove(key)
	b.metrics.recordMutation("remove")
}
