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

// Bybit uses a bare WS URL with a single post-connect subscribe frame
// covering both the order book and trade topics; snapshot vs delta is
// distinguished by a "type" field rather than a separate channel.
// Grounded on original_source/backend/src/exchanges/bybit.rs.
type Bybit struct{}

// NewBybit constructs the Bybit connector.
func NewBybit() *Bybit { return &Bybit{} }

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) BuildURL(symbols []string) string {
	return "wss://stream.bybit.com/v5/public/linear"
}

func (b *Bybit) SubscriptionFrames(symbols []string) []string {
	args := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		args = append(args, "orderbook.50."+s, "publicTrade."+s)
	}
	frame, _ := json.Marshal(struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}{Op: "subscribe", Args: args})
	return []string{string(frame)}
}

type bybitEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

type bybitOrderbookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Seq    uint64      `json:"u"`
}

type bybitTrade struct {
	Price     string `json:"p"`
	Size      string `json:"v"`
	Side      string `json:"S"`
	TimeMs    int64  `json:"T"`
}

func (b *Bybit) Parse(raw []byte) (*types.NormalizedEvent, error) {
	if !bytes.Contains(raw, []byte(`"topic"`)) {
		// Subscription ack, pong, or other control frame.
		return nil, nil
	}

	var env bybitEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bybit envelope: %w", err)
	}

	switch {
	case strings.HasPrefix(env.Topic, "orderbook"):
		var data bybitOrderbookData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("bybit orderbook data: %w", err)
		}
		bids, _ := toLevels(data.Bids)
		asks, _ := toLevels(data.Asks)
		return &types.NormalizedEvent{
			Kind: types.EventDepthUpdate,
			Depth: types.DepthUpdate{
				Venue:         b.Name(),
				Symbol:        data.Symbol,
				Snapshot:      env.Type == "snapshot",
				FinalUpdateID: data.Seq,
				Bids:          bids,
				Asks:          asks,
				ReceivedAt:    time.Now(),
			},
		}, nil

	case strings.HasPrefix(env.Topic, "publicTrade"):
		var trades []bybitTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return nil, fmt.Errorf("bybit trade data: %w", err)
		}
		if len(trades) == 0 {
			return nil, nil
		}
		symbol := env.Topic[len("publicTrade."):]
		t := trades[0]
		price, err := types.ParseScaled(t.Price)
		if err != nil {
			return nil, fmt.Errorf("bybit trade price: %w", err)
		}
		qty, err := types.ParseScaled(t.Size)
		if err != nil {
			return nil, fmt.Errorf("bybit trade qty: %w", err)
		}
		side := types.TradeBuy
		if t.Side == "Sell" {
			side = types.TradeSell
		}
		return &types.NormalizedEvent{
			Kind: types.EventTrade,
			Trade: types.Trade{
				Venue:     b.Name(),
				Symbol:    symbol,
				Price:     price,
				Qty:       qty,
				Side:      side,
				Timestamp: time.UnixMilli(t.TimeMs),
			},
		}, nil
	}

	return nil, nil
}

// FetchSnapshot always returns (nil, nil): Bybit pushes its initial
// snapshot as the first in-band WS message after subscribing.
func (b *Bybit) FetchSnapshot(ctx context.Context, symbol string, limit int) (*Snapshot, error) {
	return nil, nil
}
