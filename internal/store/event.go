package store

// EventType names a change notification produced by a mutating Store call.
type EventType string

const (
	EventKeysDeleted EventType = "keys_deleted"
	EventKeyRenamed  EventType = "key_renamed"
	EventKeyWritten  EventType = "key_written"
)

// Event describes a committed change. Mutating Store methods return events
// instead of notifying subscribers; callers forward them to whatever index
// they maintain.
type Event struct {
	Type   EventType
	Origin *Store
	// Keys affected. Empty for a keys_deleted event means the whole database.
	Keys []string
	// Old and New are set on key_renamed.
	Old *Item
	New *Item
}
