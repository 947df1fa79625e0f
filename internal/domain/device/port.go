package device

import "context"

// Port is the capability set of a MeshCore link. Two implementations exist:
// the live serial port and the deterministic mock. Command methods return the
// device event describing the outcome; an error return means the command never
// reached the device (callers fold it into a failure result).
//
// Connect is idempotent on a connected port, Disconnect on a disconnected one.
// Events delivers every event in device order on a single channel; fan-out to
// multiple consumers is the bus's job, not the port's.
type Port interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Events() <-chan Event

	SendMessage(ctx context.Context, destination, text string, textType int) (*Event, error)
	SendChannelMessage(ctx context.Context, text string, flood bool) (*Event, error)
	SendAdvert(ctx context.Context, flood bool) (*Event, error)
	SendTracePath(ctx context.Context, destination string) (*Event, error)
	Ping(ctx context.Context, destination string) (*Event, error)
	SendTelemetryRequest(ctx context.Context, destination string) (*Event, error)

	// GetContacts returns the device's current contact book. Implementations
	// may serve a cached copy; at most one fetch is in flight at a time.
	GetContacts(ctx context.Context) ([]Contact, error)

	// ResolveDestination turns a full key or a >=2-char hex prefix into a full
	// lowercase public key. Full keys pass through without a contact lookup.
	// Ambiguous prefixes resolve to the lexicographically smallest match.
	ResolveDestination(ctx context.Context, destination string) (string, error)
}
