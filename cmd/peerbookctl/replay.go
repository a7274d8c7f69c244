package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/latticenet/peerbook/internal/addrbook"
	cfgpkg "github.com/latticenet/peerbook/internal/config/addrbook"
	"github.com/latticenet/peerbook/pkg/peeraddress"
)

// scriptEvent is the on-disk shape of one replayed network occurrence.
type scriptEvent struct {
	Kind        string `json:"kind"` // add|connecting|connected|disconnected|failure|unroutable|ban
	Key         string `json:"key"`  // hex-encoded 32-byte identity key
	Protocol    string `json:"protocol,omitempty"`
	NetAddress  string `json:"net_address,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	Services    uint64 `json:"services,omitempty"`
	SignalID    string `json:"signal_id,omitempty"`
	Distance    int    `json:"distance,omitempty"`
	Seed        bool   `json:"seed,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ByRemote    bool   `json:"by_remote,omitempty"`
	BanDuration int64  `json:"ban_duration_ms,omitempty"`
}

func loadScript(path string) ([]scriptEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var events []scriptEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return events, nil
}

func parseKey(s string) (peeraddress.IdentityKey, error) {
	var key peeraddress.IdentityKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("identity key %q is not valid hex: %w", s, err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("identity key %q must decode to %d bytes, got %d", s, len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func parseProtocol(s string) peeraddress.Protocol {
	switch s {
	case "rtc":
		return peeraddress.ProtocolRTC
	case "dumb":
		return peeraddress.ProtocolDumb
	default:
		return peeraddress.ProtocolWS
	}
}

// channels memoizes one peeraddress.ChannelID per script channel name, so
// repeated references to the same channel compare equal.
type channels map[string]peeraddress.Channel

func (c channels) get(name string) peeraddress.Channel {
	if name == "" {
		return nil
	}
	if ch, ok := c[name]; ok {
		return ch
	}
	ch := peeraddress.NewChannelID()
	c[name] = ch
	return ch
}

// newBookFromScript builds a book with default config and replays events
// from path against it, returning the resulting book. An empty path yields
// an empty book.
func newBookFromScript(path string) (*addrbook.Book, error) {
	cfg := cfgpkg.DefaultConfig()
	book := addrbook.New(cfg)
	if path == "" {
		return book, nil
	}
	events, err := loadScript(path)
	if err != nil {
		return nil, err
	}
	chans := make(channels)
	for _, e := range events {
		var key peeraddress.IdentityKey
		if e.Key != "" {
			key, err = parseKey(e.Key)
			if err != nil {
				return nil, err
			}
		}
		addr := peeraddress.PeerAddress{
			Protocol:   parseProtocol(e.Protocol),
			Key:        key,
			NetAddress: e.NetAddress,
			Timestamp:  e.Timestamp,
			Services:   peeraddress.ServiceMask(e.Services),
			SignalID:   peeraddress.SignalID(e.SignalID),
			Distance:   e.Distance,
		}
		ch := chans.get(e.Channel)

		switch e.Kind {
		case "add":
			if e.Seed {
				book.AdmitSeeds([]peeraddress.PeerAddress{addr})
			} else {
				book.Add(ch, addr)
			}
		case "connecting":
			book.Connecting(addr)
		case "connected":
			book.Connected(ch, addr)
		case "disconnected":
			book.Disconnected(ch, addr, e.ByRemote)
		case "failure":
			book.Failure(addr)
		case "unroutable":
			book.Unroutable(ch, addr)
		case "ban":
			book.Ban(addr, e.BanDuration)
		default:
			return nil, fmt.Errorf("unknown script event kind %q", e.Kind)
		}
	}
	return book, nil
}
