package types

import "time"

// Level is a single price/quantity pair within an order book side.
type Level struct {
	Price Scaled
	Qty   Scaled
}

// EventKind discriminates the normalized events a venue connector can
// produce. Go favors a tagged struct with an explicit Kind field over the
// closed-sum-type dispatch of the original Rust connectors; callers switch
// on Kind the way they would match on a Rust enum.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventDepthUpdate
	EventTrade
)

// DepthUpdate is either a full snapshot (Snapshot == true) or an incremental
// delta for one (venue, symbol) book. Bids/Asks carry only the levels that
// changed for a delta, or the full book for a snapshot.
type DepthUpdate struct {
	Venue         string
	Symbol        string
	Snapshot      bool
	FirstUpdateID uint64
	FinalUpdateID uint64
	Bids          []Level
	Asks          []Level
	ReceivedAt    time.Time
}

// TradeSide is the aggressor side of a trade print.
type TradeSide int

const (
	TradeBuy TradeSide = iota
	TradeSell
)

func (s TradeSide) String() string {
	if s == TradeSell {
		return "sell"
	}
	return "buy"
}

// Trade is a single executed trade print normalized across venues.
type Trade struct {
	Venue     string
	Symbol    string
	Price     Scaled
	Qty       Scaled
	Side      TradeSide
	Timestamp time.Time
}

// NormalizedEvent is what a venue Connector.Parse call produces for a depth
// or trade frame: exactly one of Depth or Trade is populated, selected by
// Kind. For a recognized frame that carries nothing for the book or trade
// feed (heartbeat, subscription ack, control message) Parse returns a nil
// event instead; EventIgnored is only the zero Kind and no connector sets it.
type NormalizedEvent struct {
	Kind  EventKind
	Depth DepthUpdate
	Trade Trade
}
