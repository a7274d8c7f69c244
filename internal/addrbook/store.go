package addrbook

import "github.com/latticenet/peerbook/pkg/peeraddress"

// store is the indexed container of address records. It is not safe for
// concurrent use by itself — Book serializes all access with a single mutex,
// trading sharding for the simplicity of never having a transition observe a
// half-applied mutation.
type store struct {
	byKey      map[peeraddress.IdentityKey]*Record
	bySignalID map[peeraddress.SignalID]*Record

	connectingCount int
}

func newStore() *store {
	return &store{
		byKey:      make(map[peeraddress.IdentityKey]*Record),
		bySignalID: make(map[peeraddress.SignalID]*Record),
	}
}

// get returns the record for addr's identity key, if any.
func (s *store) get(key peeraddress.IdentityKey) (*Record, bool) {
	r, ok := s.byKey[key]
	return r, ok
}

// getBySignalID returns the RTC record indexed under signalID, if any.
func (s *store) getBySignalID(id peeraddress.SignalID) (*Record, bool) {
	r, ok := s.bySignalID[id]
	return r, ok
}

// add inserts r, indexed by its address's identity key (and signalID if RTC).
// It reports false without mutating the store if a record for that key
// already exists — callers must have checked get() first.
//
// connectingCount is never touched here: ownership of that counter belongs
// entirely to the state machine (machine.go), which increments/decrements it
// at the exact transitions that enter/leave CONNECTING, including the ones
// where a record is banned rather than deleted. Having both add/remove and
// every transition path independently touch the same counter is how a
// decrement silently goes missing on one code path; one owner avoids that
// class of bug entirely.
func (s *store) add(r *Record) bool {
	key := r.Address.Key
	if _, exists := s.byKey[key]; exists {
		return false
	}
	s.byKey[key] = r
	if r.Address.Protocol == peeraddress.ProtocolRTC && r.Address.SignalID != "" {
		s.bySignalID[r.Address.SignalID] = r
	}
	return true
}

// remove deletes the record for key, dropping its signalID index entry. It
// is a no-op if no such record exists. See add's note: connectingCount is
// the state machine's responsibility, not the store's.
func (s *store) remove(key peeraddress.IdentityKey) {
	r, ok := s.byKey[key]
	if !ok {
		return
	}
	delete(s.byKey, key)
	if r.Address.SignalID != "" {
		delete(s.bySignalID, r.Address.SignalID)
	}
}

// reindexSignalID fixes up the secondary signalID index after rec.Address's
// SignalID has changed (rule 8 of add() can replace an RTC record's stored
// address wholesale). oldSignalID is what the index was keyed on before the
// change; rec.Address.SignalID is read for the new key.
func (s *store) reindexSignalID(rec *Record, oldSignalID peeraddress.SignalID) {
	newSignalID := rec.Address.SignalID
	if oldSignalID == newSignalID {
		return
	}
	if oldSignalID != "" {
		if existing, ok := s.bySignalID[oldSignalID]; ok && existing == rec {
			delete(s.bySignalID, oldSignalID)
		}
	}
	if newSignalID != "" && rec.Address.Protocol == peeraddress.ProtocolRTC {
		s.bySignalID[newSignalID] = rec
	}
}

// values returns a snapshot slice of every record currently in the store,
// stable against concurrent mutation of the store (the caller iterates the
// copy, not the live map).
func (s *store) values() []*Record {
	out := make([]*Record, 0, len(s.byKey))
	for _, r := range s.byKey {
		out = append(out, r)
	}
	return out
}

// size returns the number of records in the store.
func (s *store) size() int {
	return len(s.byKey)
}
