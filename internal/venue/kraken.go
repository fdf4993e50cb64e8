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

// Kraken v2 uses a bare WS URL with a JSON-RPC-style subscribe frame per
// channel and sends numeric fields as JSON numbers rather than quoted
// strings — the one venue in this pack that does. Grounded on
// original_source/backend/src/exchanges/kraken.rs.
type Kraken struct{}

// NewKraken constructs the Kraken connector.
func NewKraken() *Kraken { return &Kraken{} }

func (k *Kraken) Name() string { return "kraken" }

func (k *Kraken) BuildURL(symbols []string) string {
	return "wss://ws.kraken.com/v2"
}

type krakenSubscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol"`
	Depth    *int     `json:"depth,omitempty"`
	Snapshot *bool    `json:"snapshot,omitempty"`
}

type krakenSubscribe struct {
	Method string                `json:"method"`
	Params krakenSubscribeParams `json:"params"`
}

func (k *Kraken) SubscriptionFrames(symbols []string) []string {
	pairs := make([]string, len(symbols))
	for i, s := range symbols {
		pairs[i] = toKrakenPair(s)
	}

	depth := 25
	snapshot := true
	book, _ := json.Marshal(krakenSubscribe{
		Method: "subscribe",
		Params: krakenSubscribeParams{Channel: "book", Symbol: pairs, Depth: &depth, Snapshot: &snapshot},
	})
	trade, _ := json.Marshal(krakenSubscribe{
		Method: "subscribe",
		Params: krakenSubscribeParams{Channel: "trade", Symbol: pairs},
	})
	return []string{string(book), string(trade)}
}

func toKrakenPair(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "/USD"
}

func fromKrakenPair(pair string) string {
	return strings.Replace(pair, "/USD", "USDT", 1)
}

type krakenChannelHeader struct {
	Channel string `json:"channel"`
}

type krakenBookMessage struct {
	Type string          `json:"type"`
	Data []krakenBookRow `json:"data"`
}

type krakenPriceLevel struct {
	Price json.Number `json:"price"`
	Qty   json.Number `json:"qty"`
}

type krakenBookRow struct {
	Symbol   string             `json:"symbol"`
	Bids     []krakenPriceLevel `json:"bids"`
	Asks     []krakenPriceLevel `json:"asks"`
	Checksum int64              `json:"checksum"`
}

type krakenTradeMessage struct {
	Data []krakenTradeRow `json:"data"`
}

type krakenTradeRow struct {
	Symbol    string      `json:"symbol"`
	Price     json.Number `json:"price"`
	Qty       json.Number `json:"qty"`
	Side      string      `json:"side"`
	Timestamp string      `json:"timestamp"`
}

// Parse rejects subscribe acks, heartbeats, and status frames via a
// substring test before decoding the channel header.
func (k *Kraken) Parse(raw []byte) (*types.NormalizedEvent, error) {
	if bytes.Contains(raw, []byte(`"method":"subscribe"`)) ||
		bytes.Contains(raw, []byte(`"channel":"heartbeat"`)) ||
		bytes.Contains(raw, []byte(`"channel":"status"`)) {
		return nil, nil
	}

	var header krakenChannelHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("kraken header: %w", err)
	}

	switch header.Channel {
	case "book":
		return k.parseBook(raw)
	case "trade":
		return k.parseTrade(raw)
	default:
		return nil, nil
	}
}

func (k *Kraken) parseBook(raw []byte) (*types.NormalizedEvent, error) {
	var msg krakenBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("kraken book: %w", err)
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	row := msg.Data[0]
	isSnapshot := msg.Type == "snapshot"

	bids := krakenLevels(row.Bids)
	asks := krakenLevels(row.Asks)
	if !isSnapshot && len(bids) == 0 && len(asks) == 0 {
		return nil, nil
	}

	return &types.NormalizedEvent{
		Kind: types.EventDepthUpdate,
		Depth: types.DepthUpdate{
			Venue:         k.Name(),
			Symbol:        fromKrakenPair(row.Symbol),
			Snapshot:      isSnapshot,
			FinalUpdateID: uint64(row.Checksum),
			Bids:          bids,
			Asks:          asks,
			ReceivedAt:    time.Now(),
		},
	}, nil
}

func krakenLevels(rows []krakenPriceLevel) []types.Level {
	out := make([]types.Level, 0, len(rows))
	for _, r := range rows {
		price, err := types.ParseScaled(r.Price.String())
		if err != nil {
			continue
		}
		qty, err := types.ParseScaled(r.Qty.String())
		if err != nil {
			continue
		}
		out = append(out, types.Level{Price: price, Qty: qty})
	}
	return out
}

func (k *Kraken) parseTrade(raw []byte) (*types.NormalizedEvent, error) {
	var msg krakenTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("kraken trade: %w", err)
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	row := msg.Data[0]

	price, err := types.ParseScaled(row.Price.String())
	if err != nil {
		return nil, fmt.Errorf("kraken trade price: %w", err)
	}
	qty, err := types.ParseScaled(row.Qty.String())
	if err != nil {
		return nil, fmt.Errorf("kraken trade qty: %w", err)
	}
	side := types.TradeBuy
	if row.Side == "sell" {
		side = types.TradeSell
	}
	ts, err := time.Parse(time.RFC3339, row.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	return &types.NormalizedEvent{
		Kind: types.EventTrade,
		Trade: types.Trade{
			Venue:     k.Name(),
			Symbol:    fromKrakenPair(row.Symbol),
			Price:     price,
			Qty:       qty,
			Side:      side,
			Timestamp: ts,
		},
	}, nil
}

// FetchSnapshot always returns (nil, nil): Kraken pushes a "snapshot"-typed
// book message as the first frame after subscribing.
func (k *Kraken) FetchSnapshot(ctx context.Context, symbol string, limit int) (*Snapshot, error) {
	return nil, nil
}
