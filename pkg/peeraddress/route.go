package peeraddress

// Route describes one path to an RTC peer: the signaling channel it was
// relayed through, the hop distance at the time, and when it was last
// refreshed.
type Route struct {
	SignalChannel Channel
	Distance      int
	Timestamp     int64 // ms since epoch
}

// betterThan reports whether r is preferred over other as the best route:
// lowest distance wins, ties broken by the most recent timestamp.
func (r Route) betterThan(other Route) bool {
	if r.Distance != other.Distance {
		return r.Distance < other.Distance
	}
	return r.Timestamp > other.Timestamp
}

// BestRoute scans routes and returns the index of the best one, or -1 if
// routes is empty.
func BestRoute(routes []Route) int {
	best := -1
	for i, r := range routes {
		if best == -1 || r.betterThan(routes[best]) {
			best = i
		}
	}
	return best
}
