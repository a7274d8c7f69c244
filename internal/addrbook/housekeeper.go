package addrbook

import (
	"context"
	"time"

	"github.com/latticenet/peerbook/pkg/peeraddress"
	"github.com/latticenet/peerbook/pkg/peerlog"
)

// runHousekeeping blocks on a ticker until ctx is cancelled, running one
// housekeeping pass every Config.HousekeepingInterval.
func (b *Book) runHousekeeping(ctx context.Context) {
	interval := b.cfg.HousekeepingInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runHousekeepingPass()
		}
	}
}

// runHousekeepingPass does a single sweep over the store: expiring aged
// NEW/TRIED/FAILED records, lifting or removing expired bans, refreshing
// CONNECTED timestamps, and — if configured — unsticking records that have
// been CONNECTING too long. Unbans collected during the pass are announced
// as a single added batch at the end.
func (b *Book) runHousekeepingPass() {
	b.mu.Lock()
	now := b.cfg.NowMs()
	var unbanned []peeraddress.PeerAddress
	expired, restored, refreshed := 0, 0, 0

	for _, rec := range b.store.values() {
		switch rec.State {
		case StateNew, StateTried, StateFailed:
			if rec.Address.ExceedsAge(now, b.cfg.MaxAgeWS, b.cfg.MaxAgeRTC, b.cfg.MaxAgeDumb) {
				b.removeAged(rec)
				expired++
			}
		case StateBanned:
			if rec.BannedUntil <= now {
				if b.restoreFromBan(rec) {
					restored++
					unbanned = append(unbanned, rec.Address)
				} else {
					b.store.remove(rec.Address.Key)
					b.metrics.recordMutation("remove")
					expired++
				}
			}
		case StateConnected:
			rec.Address.Timestamp = now
			if rec.BestRoute >= 0 && rec.BestRoute < len(rec.Routes) {
				rec.Routes[rec.BestRoute].Timestamp = now
			}
			refreshed++
		case StateConnecting:
			if b.cfg.ConnectingTimeout > 0 && now-rec.connectingTransitionedAt > b.cfg.ConnectingTimeout.Milliseconds() {
				b.store.connectingCount--
				rec.State = StateFailed
				rec.FailedAttempts++
				if rec.FailedAttempts >= b.cfg.MaxFailedAttempts(rec.Address.Protocol) {
					b.selfBan(rec)
				}
			}
		}
	}
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()

	peerlog.Infof(b.log, "addrbook housekeeping expired=%d restored=%d refreshed=%d", expired, restored, refreshed)
	if len(unbanned) > 0 {
		b.publishAdded(unbanned, false)
	}
}

// removeAged deletes a non-seed aged record outright, or bans a seed (never
// deleting it) — the seed-permanence invariant applies during housekeeping
// too, not just on explicit remove().
func (b *Book) removeAged(rec *Record) {
	if rec.Address.IsSeed() {
		b.remove(rec.Address.Key)
		return
	}
	if rec.State == StateConnecting {
		b.store.connectingCount--
	}
	b.store.remove(rec.Address.Key)
	b.metrics.recordMutation("remove")
}

// restoreFromBan restores rec to NEW if it's a seed or had exhausted its
// failure budget (worth re-trying later). It reports whether the record was
// restored (vs. should be removed by the caller).
func (b *Book) restoreFromBan(rec *Record) bool {
	exhausted := rec.FailedAttempts >= b.cfg.MaxFailedAttempts(rec.Address.Protocol)
	if !rec.Address.IsSeed() && !exhausted {
		return false
	}
	rec.State = StateNew
	rec.FailedAttempts = 0
	rec.BannedUntil = -1
	return true
}
