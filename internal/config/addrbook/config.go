// Package addrbook holds the tunable constants and external collaborators an
// address book is constructed with.
package addrbook

import (
	"time"

	"github.com/latticenet/peerbook/pkg/peeraddress"
	"github.com/latticenet/peerbook/pkg/peerlog"
)

// Config carries every tunable from the book's external interface plus the
// outbound collaborators it needs (self identity, online check, clock).
// Build one with DefaultConfig and override only what differs.
type Config struct {
	// Age limits per protocol, after which an address is no longer queryable
	// and is eligible for housekeeping eviction.
	MaxAgeWS   time.Duration
	MaxAgeRTC  time.Duration
	MaxAgeDumb time.Duration

	// MaxDistance is the maximum RTC hop count before a route is rejected as
	// a loop.
	MaxDistance int

	// Failure budgets before a record self-bans.
	MaxFailedAttemptsWS  int
	MaxFailedAttemptsRTC int

	// MaxTimestampDrift rejects addresses claiming a future timestamp beyond
	// this tolerance.
	MaxTimestampDrift time.Duration

	// HousekeepingInterval is how often the periodic GC/refresh pass runs.
	HousekeepingInterval time.Duration

	// DefaultBanTime is used when ban(addr) is called with duration <= 0.
	DefaultBanTime time.Duration

	// InitialFailedBackoff and MaxFailedBackoff bound the exponential
	// self-ban backoff applied on repeated failures.
	InitialFailedBackoff time.Duration
	MaxFailedBackoff     time.Duration

	// ConnectingTimeout, if non-zero, makes the housekeeper move a record
	// stuck in CONNECTING for longer than this back to FAILED. Zero disables
	// the sweep (the default): nothing currently garbage-collects a stalled
	// dial attempt left hanging by a connection manager that never follows
	// up with connected/failure.
	ConnectingTimeout time.Duration

	// SelfAddress is this node's own identity, used by the add() self-guard.
	SelfAddress peeraddress.IdentityKey

	// IsOnline reports current network reachability; influences the
	// remote-disconnect eviction branch. A nil func is treated as "online".
	IsOnline func() bool

	// Now returns the current wall clock in ms since epoch. A nil func
	// defaults to time.Now().
	Now func() int64

	Logger peerlog.Logger
}

// DefaultConfig returns a Config populated with the book's documented
// defaults: 30m/10m/1m max age for WS/RTC/Dumb, max distance 4, failure
// budgets of 3 (WS) and 2 (RTC), 10m timestamp drift tolerance, a 60s
// housekeeping interval, a 10m default ban, and a 15s initial self-ban
// backoff capped at 10m.
func DefaultConfig() Config {
	return Config{
		MaxAgeWS:             30 * time.Minute,
		MaxAgeRTC:            10 * time.Minute,
		MaxAgeDumb:           1 * time.Minute,
		MaxDistance:          4,
		MaxFailedAttemptsWS:  3,
		MaxFailedAttemptsRTC: 2,
		MaxTimestampDrift:    10 * time.Minute,
		HousekeepingInterval: 60 * time.Second,
		DefaultBanTime:       10 * time.Minute,
		InitialFailedBackoff: 15 * time.Second,
		MaxFailedBackoff:     10 * time.Minute,
		ConnectingTimeout:    0,
	}
}

// MaxFailedAttempts returns the failure budget for the given protocol.
// Dumb clients fail immediately: their budget is 0.
func (c Config) MaxFailedAttempts(p peeraddress.Protocol) int {
	switch p {
	case peeraddress.ProtocolWS:
		return c.MaxFailedAttemptsWS
	case peeraddress.ProtocolRTC:
		return c.MaxFailedAttemptsRTC
	default:
		return 0
	}
}

// NowMs returns the current wall clock in ms since epoch, using the
// configured clock or time.Now() if unset.
func (c Config) NowMs() int64 {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UnixMilli()
}

// Online reports whether the node currently considers itself online. A nil
// IsOnline collaborator defaults to true.
func (c Config) Online() bool {
	if c.IsOnline != nil {
		return c.IsOnline()
	}
	return true
}
