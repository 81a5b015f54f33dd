package resource

import "github.com/wippyai/bfbridge"

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle = bfbridge.Handle

// TypeID tags the kind of native resource a handle refers to.
type TypeID uint32

const (
	TypeVM TypeID = iota + 1
	TypeThread
	TypeInstance
)

func (t TypeID) String() string {
	switch t {
	case TypeVM:
		return "vm"
	case TypeThread:
		return "thread"
	case TypeInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// EventType identifies resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is implemented by values that release state when removed.
type Dropper interface {
	Drop()
}
