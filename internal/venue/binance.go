package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"depthfeed/pkg/types"
)

// Binance streams both depth deltas and trades over a single combined-
// stream URL, and is the only venue in this pack whose book is seeded by
// a REST snapshot rather than an in-band WS message. Grounded on
// original_source/backend/src/exchanges/binance.rs.
type Binance struct {
	rest *RESTClient
}

// NewBinance constructs the Binance connector.
func NewBinance() *Binance {
	return &Binance{rest: NewRESTClient()}
}

func (b *Binance) Name() string { return "binance" }

// BuildURL embeds every symbol's depth and trade streams directly in the
// URL path — Binance needs no post-connect subscription frame.
func (b *Binance) BuildURL(symbols []string) string {
	streams := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@depth@100ms", lower+"@aggTrade")
	}
	return "wss://fstream.binance.com/stream?streams=" + strings.Join(streams, "/")
}

// SubscriptionFrames is empty: Binance's streams are already selected by
// the URL.
func (b *Binance) SubscriptionFrames(symbols []string) []string { return nil }

type binanceDepthStream struct {
	Stream string            `json:"stream"`
	Data   binanceDepthEvent `json:"data"`
}

type binanceDepthEvent struct {
	Symbol        string     `json:"s"`
	FirstUpdateID uint64     `json:"U"`
	FinalUpdateID uint64     `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

type binanceTradeStream struct {
	Stream string           `json:"stream"`
	Data   binanceAggTrade  `json:"data"`
}

type binanceAggTrade struct {
	Symbol       string `json:"s"`
	EventTimeMs  int64  `json:"E"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

// Parse cheaply tests for the "@depth" channel marker before deciding
// which stream DTO to unmarshal into, avoiding two full parse attempts
// per frame.
func (b *Binance) Parse(raw []byte) (*types.NormalizedEvent, error) {
	isDepth := bytes.Contains(raw, []byte("@depth"))

	if isDepth {
		var msg binanceDepthStream
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("binance depth: %w", err)
		}
		bids, err := toLevels(msg.Data.Bids)
		if err != nil {
			return nil, fmt.Errorf("binance depth bids: %w", err)
		}
		asks, err := toLevels(msg.Data.Asks)
		if err != nil {
			return nil, fmt.Errorf("binance depth asks: %w", err)
		}
		return &types.NormalizedEvent{
			Kind: types.EventDepthUpdate,
			Depth: types.DepthUpdate{
				Venue:         b.Name(),
				Symbol:        msg.Data.Symbol,
				Snapshot:      false, // Binance futures never marks a delta as a snapshot
				FirstUpdateID: msg.Data.FirstUpdateID,
				FinalUpdateID: msg.Data.FinalUpdateID,
				Bids:          bids,
				Asks:          asks,
				ReceivedAt:    time.Now(),
			},
		}, nil
	}

	var msg binanceTradeStream
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("binance trade: %w", err)
	}
	price, err := types.ParseScaled(msg.Data.Price)
	if err != nil {
		return nil, fmt.Errorf("binance trade price: %w", err)
	}
	qty, err := types.ParseScaled(msg.Data.Qty)
	if err != nil {
		return nil, fmt.Errorf("binance trade qty: %w", err)
	}
	side := types.TradeBuy
	if msg.Data.IsBuyerMaker {
		side = types.TradeSell
	}
	return &types.NormalizedEvent{
		Kind: types.EventTrade,
		Trade: types.Trade{
			Venue:     b.Name(),
			Symbol:    msg.Data.Symbol,
			Price:     price,
			Qty:       qty,
			Side:      side,
			Timestamp: time.UnixMilli(msg.Data.EventTimeMs),
		},
	}, nil
}

type binanceDepthResponse struct {
	LastUpdateID uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// FetchSnapshot fetches the initial book over REST, the only venue in
// this pack that does.
func (b *Binance) FetchSnapshot(ctx context.Context, symbol string, limit int) (*Snapshot, error) {
	url := fmt.Sprintf("https://fapi.binance.com/fapi/v1/depth?symbol=%s&limit=%d", symbol, limit)
	var resp binanceDepthResponse
	if err := b.rest.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	bids, err := toLevels(resp.Bids)
	if err != nil {
		return nil, fmt.Errorf("binance snapshot bids: %w", err)
	}
	asks, err := toLevels(resp.Asks)
	if err != nil {
		return nil, fmt.Errorf("binance snapshot asks: %w", err)
	}
	return &Snapshot{Bids: bids, Asks: asks, LastUpdateID: resp.LastUpdateID}, nil
}

// toLevels converts a [price,qty] string-pair array (the common
// Binance/Coinbase/Bybit wire shape) into internal fixed-point levels,
// dropping entries with a malformed number rather than failing the whole
// batch per §7's per-level error taxonomy.
func toLevels(raw [][2]string) ([]types.Level, error) {
	out := make([]types.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := types.ParseScaled(pair[0])
		if err != nil {
			continue
		}
		qty, err := types.ParseScaled(pair[1])
		if err != nil {
			continue
		}
		out = append(out, types.Level{Price: price, Qty: qty})
	}
	return out, nil
}
