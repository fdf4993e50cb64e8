// Package venue implements one connector per exchange: URL construction,
// subscription framing, and wire parsing into the normalized event types
// consumed by the order book engine. Each venue differs in symbol naming,
// subscription style, snapshot origin, and wire number encoding (§4.E);
// the Connector interface is the single seam the connection manager
// dispatches through, so adding a venue never touches connmgr.
package venue

import (
	"context"

	"depthfeed/pkg/types"
)

// Snapshot is a REST-fetched full order book, returned only by connectors
// whose venue originates the book out-of-band from the WebSocket stream.
type Snapshot struct {
	Bids         []types.Level
	Asks         []types.Level
	LastUpdateID uint64
}

// Connector is the capability set every venue implements. Symbol is always
// the canonical internal form (BASEQUOTE, e.g. "BTCUSDT"); connectors map
// to/from their venue-native spelling at the boundary.
type Connector interface {
	// Name identifies the venue in books, metrics, and logs.
	Name() string

	// BuildURL returns the WebSocket URL to dial for the given symbol set.
	// Connectors that embed their subscription in the URL encode it here;
	// others return a bare endpoint and rely on SubscriptionFrames.
	BuildURL(symbols []string) string

	// SubscriptionFrames returns the text frames to send immediately after
	// connecting. An empty slice means the venue needs no post-connect
	// subscription (its streams are already selected by the URL).
	SubscriptionFrames(symbols []string) []string

	// Parse normalizes one inbound text frame. A nil event with a nil error
	// means the frame was recognized and intentionally ignored (heartbeat,
	// ack, control message). A non-nil error means the frame was
	// structurally malformed; callers must treat this as recoverable.
	Parse(raw []byte) (*types.NormalizedEvent, error)

	// FetchSnapshot fetches a REST order book snapshot for symbol, or
	// (nil, nil) for venues whose book is seeded by an in-band WS message.
	FetchSnapshot(ctx context.Context, symbol string, limit int) (*Snapshot, error)
}
