package domain

// MusicianDirectory provides read access to musician profiles owned by the
// marketplace's document store. The engine only ever reads through this port;
// tests substitute mocks and production wires the directory module.
type MusicianDirectory interface {
	// GetProfile returns the profile for a musician, or a NotFoundError.
	GetProfile(musicianID string) (*MusicianProfile, error)
}

// EventDirectory provides read access to open (unbooked) events.
type EventDirectory interface {
	// GetEvent returns an event by id, or a NotFoundError.
	GetEvent(eventID string) (*Event, error)

	// ListOpenEvents returns events still accepting candidates, soonest first.
	ListOpenEvents(limit int) ([]Event, error)
}
