package presence

import "time"

// DefaultTTL is the heartbeat staleness threshold used when no TTL is
// configured. A musician whose last heartbeat is older than the TTL is
// reported offline regardless of the stored flag.
const DefaultTTL = 120 * time.Second

// IsStale is the single staleness predicate shared by the tracker and the
// matching orchestrator. Staleness is derived at read time; callers never
// write the derived state back to storage.
func IsStale(lastHeartbeatAt, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(lastHeartbeatAt) > ttl
}

// DerivedOnline applies the staleness rule to a stored snapshot.
func DerivedOnline(p *MusicianPresence, now time.Time, ttl time.Duration) bool {
	return p.IsOnline && !IsStale(p.LastHeartbeatAt, now, ttl)
}
