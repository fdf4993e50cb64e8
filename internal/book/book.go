// Package book implements the per-(venue,symbol) order book engine and the
// concurrent registry that holds one book per tracked market.
package book

import (
	"fmt"
	"sort"
	"sync"

	"depthfeed/pkg/types"
)

// OrderBook holds the bid/ask ladder for a single venue+symbol pair. Bids
// are kept sorted descending by price (best bid first); asks ascending
// (best ask first). All mutation happens under a single per-book lock —
// ordering is guaranteed only within one book, never across books.
type OrderBook struct {
	mu sync.RWMutex

	venue  string
	symbol string

	bids []types.Level
	asks []types.Level

	maxDepth     int
	lastUpdateID uint64
	initialized  bool
}

// New constructs an empty, uninitialized book for venue/symbol, capped at
// maxDepth levels per side.
func New(venue, symbol string, maxDepth int) *OrderBook {
	return &OrderBook{
		venue:    venue,
		symbol:   symbol,
		maxDepth: maxDepth,
	}
}

// Venue returns the book's venue identifier.
func (b *OrderBook) Venue() string { return b.venue }

// Symbol returns the book's trading symbol.
func (b *OrderBook) Symbol() string { return b.symbol }

// IsInitialized reports whether a REST or WS snapshot has been applied.
func (b *OrderBook) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// LastUpdateID returns the sequence number of the most recently applied
// snapshot or delta.
func (b *OrderBook) LastUpdateID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// InitializeFromSnapshot replaces the entire book with a fresh snapshot.
// Zero-quantity levels are dropped, both sides are sorted best-first, and
// each side is truncated to maxDepth. Calling this more than once is safe
// and simply replaces the prior state (idempotent).
func (b *OrderBook) InitializeFromSnapshot(bids, asks []types.Level, lastUpdateID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = filterAndSort(bids, true, b.maxDepth)
	b.asks = filterAndSort(asks, false, b.maxDepth)
	b.lastUpdateID = lastUpdateID
	b.initialized = true
}

func filterAndSort(levels []types.Level, descending bool, maxDepth int) []types.Level {
	out := make([]types.Level, 0, len(levels))
	for _, l := range levels {
		if !l.Qty.Zero() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if maxDepth > 0 && len(out) > maxDepth {
		out = out[:maxDepth]
	}
	return out
}

// ApplyUpdate applies an incremental delta to one or both sides. Each level
// is set-replacement: a zero quantity deletes the level, a nonzero quantity
// inserts or overwrites it. Levels that would fall beyond maxDepth from the
// best price are silently dropped rather than stored. Returns true if the
// book's visible state actually changed.
//
// finalUpdateID <= the book's current last_update_id means the delta is
// stale (arrived out of order, or duplicates one already applied) and is
// dropped entirely without mutating anything.
func (b *OrderBook) ApplyUpdate(bids, asks []types.Level, firstUpdateID, finalUpdateID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized && finalUpdateID <= b.lastUpdateID {
		return false
	}
	_ = firstUpdateID // kept for parity with venue wire formats; not used to gate application

	newBids, bidsChanged := applyLevels(b.bids, bids, true, b.maxDepth)
	newAsks, asksChanged := applyLevels(b.asks, asks, false, b.maxDepth)
	b.bids = newBids
	b.asks = newAsks
	b.lastUpdateID = finalUpdateID
	b.initialized = true
	return bidsChanged || asksChanged
}

// applyLevels applies a batch of set-replacement deltas to one side of the
// book, which is kept sorted with the best price first (descending for
// bids, ascending for asks). Returns the new slice and whether anything
// changed.
func applyLevels(side []types.Level, deltas []types.Level, descending bool, maxDepth int) ([]types.Level, bool) {
	changed := false
	for _, d := range deltas {
		idx, found := searchLevel(side, d.Price, descending)
		switch {
		case d.Qty.Zero():
			if found {
				side = append(side[:idx], side[idx+1:]...)
				changed = true
			}
		case found:
			if side[idx].Qty != d.Qty {
				side[idx].Qty = d.Qty
				changed = true
			}
		default:
			// New level: only keep it if it falls within the depth window.
			if maxDepth > 0 && idx >= maxDepth {
				continue
			}
			side = append(side, types.Level{})
			copy(side[idx+1:], side[idx:])
			side[idx] = d
			if maxDepth > 0 && len(side) > maxDepth {
				side = side[:maxDepth]
			}
			changed = true
		}
	}
	return side, changed
}

// searchLevel returns the index where price is found, or where it would be
// inserted to keep side sorted, via binary search.
func searchLevel(side []types.Level, price types.Scaled, descending bool) (int, bool) {
	idx := sort.Search(len(side), func(i int) bool {
		if descending {
			return side[i].Price <= price
		}
		return side[i].Price >= price
	})
	if idx < len(side) && side[idx].Price == price {
		return idx, true
	}
	return idx, false
}

// BestBid returns the highest bid price, if any.
func (b *OrderBook) BestBid() (types.Scaled, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].Price, true
}

// BestAsk returns the lowest ask price, if any.
func (b *OrderBook) BestAsk() (types.Scaled, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price, true
}

// Spread returns ask-bid and (ask-bid)/midpoint*100, or ok=false if either
// side is empty.
func (b *OrderBook) Spread() (spread types.Scaled, spreadPercent float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, 0, false
	}
	bid, ask := b.bids[0].Price, b.asks[0].Price
	spread = ask.Sub(bid)
	mid := float64(bid+ask) / 2
	if mid > 0 {
		spreadPercent = float64(spread) / mid * 100
	}
	return spread, spreadPercent, true
}

// TopN returns up to n levels per side, best price first.
func (b *OrderBook) TopN(n int) (bids, asks []types.Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneLevels(b.bids, n), cloneLevels(b.asks, n)
}

func cloneLevels(src []types.Level, n int) []types.Level {
	if n > len(src) || n <= 0 {
		n = len(src)
	}
	out := make([]types.Level, n)
	copy(out, src[:n])
	return out
}

// BidDepth and AskDepth sum quantities across every level currently stored
// (not just the displayed top-N window).
func (b *OrderBook) BidDepth() types.Scaled {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sumQty(b.bids)
}

func (b *OrderBook) AskDepth() types.Scaled {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sumQty(b.asks)
}

func sumQty(levels []types.Level) types.Scaled {
	var total types.Scaled
	for _, l := range levels {
		total = total.Add(l.Qty)
	}
	return total
}

// ToClientMessage renders the current book state into the wire message sent
// to subscribers, showing up to displayDepth levels per side.
func (b *OrderBook) ToClientMessage(displayDepth int) types.BookUpdateMessage {
	bids, asks := b.TopN(displayDepth)
	spread, spreadPercent, _ := b.Spread()

	return types.BookUpdateMessage{
		Type:          types.MsgBookUpdate,
		Exchange:      b.venue,
		Symbol:        b.symbol,
		Bids:          toWireLevels(bids),
		Asks:          toWireLevels(asks),
		Spread:        spread.ToDecimal(),
		SpreadPercent: fmt.Sprintf("%.4f", spreadPercent),
		BidDepth:      sumQty(bids).ToDecimal(),
		AskDepth:      sumQty(asks).ToDecimal(),
		LastUpdateID:  b.LastUpdateID(),
	}
}

func toWireLevels(levels []types.Level) []types.WireLevel {
	out := make([]types.WireLevel, len(levels))
	for i, l := range levels {
		out[i] = types.WireLevel{Price: l.Price.ToDecimal(), Qty: l.Qty.ToDecimal()}
	}
	return out
}
