// Package addrbook implements the peer address book: the registry, state
// machine, housekeeper, and query/scoring logic a connection manager and
// gossip layer drive a node's peer set through.
package addrbook

import (
	"context"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/latticenet/peerbook/internal/config/addrbook"
	"github.com/latticenet/peerbook/pkg/peeraddress"
	"github.com/latticenet/peerbook/pkg/peerlog"
)

// addedTopic is the fixed EventBus topic the `added` notification is
// published under.
const addedTopic = "peerbook:added"

// Book is the peer address book: the single collaborator a connection
// manager and gossip layer talk to. All exported methods are safe for
// concurrent use; internally every one serializes on mu so no transition
// ever observes another one mid-way and no state read races a write.
type Book struct {
	mu    sync.Mutex
	store *store
	cfg   cfgpkg.Config
	log   peerlog.Logger

	metrics *metrics
	bus     evbus.Bus
}

// Option configures optional Book collaborators beyond Config.
type Option func(*Book)

// WithRegistry registers the book's Prometheus collectors against reg
// instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(b *Book) { b.metrics = newMetrics(reg) }
}

// WithEventBus wires a caller-supplied EventBus instead of the book's own
// private one, letting other subsystems subscribe to the same bus.
func WithEventBus(bus evbus.Bus) Option {
	return func(b *Book) { b.bus = bus }
}

// New builds an empty Book from cfg. Callers typically follow New with
// AdmitSeeds to admit the configured bootstrap list.
func New(cfg cfgpkg.Config, opts ...Option) *Book {
	b := &Book{
		store: newStore(),
		cfg:   cfg,
		log:   cfg.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = newMetrics(nil)
	}
	if b.bus == nil {
		b.bus = evbus.New()
	}
	return b
}

// Run starts the periodic housekeeper and blocks until ctx is cancelled.
// Callers typically invoke it with `go book.Run(ctx)`.
func (b *Book) Run(ctx context.Context) {
	b.runHousekeeping(ctx)
}

// AdmitSeeds admits bootstrap addresses through the same add() admission
// path as any other address (channel == nil), so the self-guard applies
// uniformly — a node can never seed itself.
func (b *Book) AdmitSeeds(seeds []peeraddress.PeerAddress) {
	var added []peeraddress.PeerAddress
	b.mu.Lock()
	for _, s := range seeds {
		s.Timestamp = 0
		added = append(added, b.handle(Event{Kind: EventAdd, Address: s})...)
	}
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
	if len(added) > 0 {
		b.publishAdded(added, true)
	}
}

// Add implements the inbound `add(channel?, address | addresses)` API. The
// added notification fires at most once per call, after the whole batch is
// integrated, listing only the addresses that were genuinely new.
func (b *Book) Add(channel peeraddress.Channel, addrs ...peeraddress.PeerAddress) {
	var added []peeraddress.PeerAddress
	b.mu.Lock()
	for _, a := range addrs {
		added = append(added, b.handle(Event{Kind: EventAdd, Address: a, Channel: channel})...)
	}
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
	if len(added) > 0 {
		b.publishAdded(added, false)
	}
}

// Connecting implements the `connecting(address)` lifecycle event.
func (b *Book) Connecting(addr peeraddress.PeerAddress) {
	b.mu.Lock()
	b.handle(Event{Kind: EventConnecting, Address: addr})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Connected implements the `connected(channel, address)` lifecycle event.
func (b *Book) Connected(channel peeraddress.Channel, addr peeraddress.PeerAddress) {
	b.mu.Lock()
	b.handle(Event{Kind: EventConnected, Address: addr, Channel: channel})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Disconnected implements the `disconnected(channel, address, closedByRemote)`
// lifecycle event.
func (b *Book) Disconnected(channel peeraddress.Channel, addr peeraddress.PeerAddress, closedByRemote bool) {
	b.mu.Lock()
	b.handle(Event{Kind: EventDisconnected, Address: addr, Channel: channel, ByRemote: closedByRemote})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Failure implements the `failure(address)` lifecycle event.
func (b *Book) Failure(addr peeraddress.PeerAddress) {
	b.mu.Lock()
	b.handle(Event{Kind: EventFailure, Address: addr})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Unroutable implements the `unroutable(channel, address)` lifecycle event.
func (b *Book) Unroutable(channel peeraddress.Channel, addr peeraddress.PeerAddress) {
	b.mu.Lock()
	b.handle(Event{Kind: EventUnroutable, Address: addr, Channel: channel})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Ban implements the administrative `ban(address, duration?)` API. A
// duration <= 0 uses Config.DefaultBanTime.
func (b *Book) Ban(addr peeraddress.PeerAddress, durationMs int64) {
	b.mu.Lock()
	b.handle(Event{Kind: EventBan, Address: addr, BanDuration: durationMs})
	b.metrics.refreshGauges(b.store.size(), b.store.connectingCount)
	b.mu.Unlock()
}

// Query returns a filtered, scored, capped snapshot of queryable addresses.
func (b *Book) Query(protocolMask ProtocolMask, serviceMask peeraddress.ServiceMask, maxAddresses int) []peeraddress.PeerAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query(protocolMask, serviceMask, maxAddresses)
}

// IsConnected reports whether addr's record is currently CONNECTED.
func (b *Book) IsConnected(addr peeraddress.PeerAddress) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.store.get(addr.Key)
	return ok && rec.State == StateConnected
}

// IsBanned reports whether addr's record is currently BANNED. Seeds always
// report false here, even when internally BANNED.
func (b *Book) IsBanned(addr peeraddress.PeerAddress) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.store.get(addr.Key)
	if !ok {
		return false
	}
	if rec.Address.IsSeed() {
		return false
	}
	return rec.isBanned()
}

// Size returns the number of records currently tracked by the book.
func (b *Book) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.size()
}

// ConnectingCount returns the number of records currently in CONNECTING.
func (b *Book) ConnectingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.connectingCount
}

// WaitAsync blocks until every added notification published so far has been
// delivered to its async subscribers. Production callers don't need this —
// it exists for tests that assert on a Subscribe callback's side effects
// immediately after the call that triggered it.
func (b *Book) WaitAsync() {
	b.bus.WaitAsync()
}

// Subscribe registers fn to be called whenever new addresses become
// queryable: a fresh or updated add, or a housekeeping unban. self
// reports whether the batch originated from this node's own AdmitSeeds call.
func (b *Book) Subscribe(fn func(addrs []peeraddress.PeerAddress, self bool)) error {
	return b.bus.SubscribeAsync(addedTopic, fn, false)
}

// publishAdded fans the added notification out over the event bus. self
// reports whether this batch came from AdmitSeeds (this node's own bootstrap
// list) rather than from a network-driven add or a housekeeping unban.
func (b *Book) publishAdded(addrs []peeraddress.PeerAddress, self bool) {
	b.bus.Publish(addedTopic, addrs, self)
}
