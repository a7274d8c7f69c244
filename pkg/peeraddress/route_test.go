package peeraddress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestRouteLowestDistanceWins(t *testing.T) {
	routes := []Route{
		{SignalChannel: NewChannelID(), Distance: 3, Timestamp: 100},
		{SignalChannel: NewChannelID(), Distance: 1, Timestamp: 50},
		{SignalChannel: NewChannelID(), Distance: 2, Timestamp: 200},
	}
	assert.Equal(t, 1, BestRoute(routes))
}

func TestBestRouteTiesBrokenByNewestTimestamp(t *testing.T) {
	routes := []Route{
		{SignalChannel: NewChannelID(), Distance: 2, Timestamp: 100},
		{SignalChannel: NewChannelID(), Distance: 2, Timestamp: 300},
	}
	assert.Equal(t, 1, BestRoute(routes))
}

func TestBestRouteEmpty(t *testing.T) {
	assert.Equal(t, -1, BestRoute(nil))
}
