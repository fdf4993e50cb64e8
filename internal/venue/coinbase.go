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

// Coinbase uses a bare WS URL with two post-connect subscribe frames
// (level2, market_trades) and timestamps trades in RFC 3339. Its book
// snapshot arrives as the first "snapshot"-typed l2_data event rather
// than over REST. Grounded on
// original_source/backend/src/exchanges/coinbase.rs.
type Coinbase struct{}

// NewCoinbase constructs the Coinbase connector.
func NewCoinbase() *Coinbase { return &Coinbase{} }

func (c *Coinbase) Name() string { return "coinbase" }

func (c *Coinbase) BuildURL(symbols []string) string {
	return "wss://advanced-trade-ws.coinbase.com"
}

func (c *Coinbase) SubscriptionFrames(symbols []string) []string {
	productIDs := make([]string, len(symbols))
	for i, s := range symbols {
		productIDs[i] = toCoinbaseProduct(s)
	}

	l2, _ := json.Marshal(struct {
		Type       string   `json:"type"`
		ProductIDs []string `json:"product_ids"`
		Channel    string   `json:"channel"`
	}{Type: "subscribe", ProductIDs: productIDs, Channel: "level2"})

	trades, _ := json.Marshal(struct {
		Type       string   `json:"type"`
		ProductIDs []string `json:"product_ids"`
		Channel    string   `json:"channel"`
	}{Type: "subscribe", ProductIDs: productIDs, Channel: "market_trades"})

	return []string{string(l2), string(trades)}
}

func toCoinbaseProduct(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "-USD"
}

func fromCoinbaseProduct(productID string) string {
	return strings.Replace(productID, "-USD", "USDT", 1)
}

type coinbaseChannelHeader struct {
	Channel string `json:"channel"`
}

type coinbaseLevel2Message struct {
	SequenceNum uint64                 `json:"sequence_num"`
	Events      []coinbaseLevel2Event  `json:"events"`
}

type coinbaseLevel2Event struct {
	Type      string                  `json:"type"`
	ProductID string                  `json:"product_id"`
	Updates   []coinbaseLevel2Update  `json:"updates"`
}

type coinbaseLevel2Update struct {
	Side        string `json:"side"`
	PriceLevel  string `json:"price_level"`
	NewQuantity string `json:"new_quantity"`
}

type coinbaseTradeMessage struct {
	Events []coinbaseTradeEvent `json:"events"`
}

type coinbaseTradeEvent struct {
	Trades []coinbaseTradeData `json:"trades"`
}

type coinbaseTradeData struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

// Parse cheaply rejects subscription/heartbeat control frames via a byte
// substring test, then routes on the "channel" header rather than
// attempting both full-message shapes.
func (c *Coinbase) Parse(raw []byte) (*types.NormalizedEvent, error) {
	if bytes.Contains(raw, []byte(`"channel":"subscriptions"`)) ||
		bytes.Contains(raw, []byte(`"channel":"heartbeats"`)) {
		return nil, nil
	}

	var header coinbaseChannelHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("coinbase header: %w", err)
	}

	switch header.Channel {
	case "l2_data":
		return c.parseLevel2(raw)
	case "market_trades":
		return c.parseTrade(raw)
	default:
		return nil, nil
	}
}

func (c *Coinbase) parseLevel2(raw []byte) (*types.NormalizedEvent, error) {
	var msg coinbaseLevel2Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("coinbase l2_data: %w", err)
	}
	if len(msg.Events) == 0 {
		return nil, nil
	}
	event := msg.Events[0]
	symbol := fromCoinbaseProduct(event.ProductID)

	var bids, asks []types.Level
	for _, u := range event.Updates {
		price, err := types.ParseScaled(u.PriceLevel)
		if err != nil {
			continue
		}
		qty, err := types.ParseScaled(u.NewQuantity)
		if err != nil {
			continue
		}
		level := types.Level{Price: price, Qty: qty}
		switch u.Side {
		case "bid":
			bids = append(bids, level)
		case "offer":
			asks = append(asks, level)
		}
	}

	return &types.NormalizedEvent{
		Kind: types.EventDepthUpdate,
		Depth: types.DepthUpdate{
			Venue:         c.Name(),
			Symbol:        symbol,
			Snapshot:      event.Type == "snapshot",
			FinalUpdateID: msg.SequenceNum,
			Bids:          bids,
			Asks:          asks,
			ReceivedAt:    time.Now(),
		},
	}, nil
}

func (c *Coinbase) parseTrade(raw []byte) (*types.NormalizedEvent, error) {
	var msg coinbaseTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("coinbase market_trades: %w", err)
	}
	if len(msg.Events) == 0 || len(msg.Events[0].Trades) == 0 {
		return nil, nil
	}
	t := msg.Events[0].Trades[0]

	price, err := types.ParseScaled(t.Price)
	if err != nil {
		return nil, fmt.Errorf("coinbase trade price: %w", err)
	}
	qty, err := types.ParseScaled(t.Size)
	if err != nil {
		return nil, fmt.Errorf("coinbase trade qty: %w", err)
	}
	side := types.TradeBuy
	if t.Side == "SELL" {
		side = types.TradeSell
	}
	ts, err := time.Parse(time.RFC3339, t.Time)
	if err != nil {
		ts = time.Now()
	}

	return &types.NormalizedEvent{
		Kind: types.EventTrade,
		Trade: types.Trade{
			Venue:     c.Name(),
			Symbol:    fromCoinbaseProduct(t.ProductID),
			Price:     price,
			Qty:       qty,
			Side:      side,
			Timestamp: ts,
		},
	}, nil
}

// FetchSnapshot always returns (nil, nil): Coinbase's first l2_data event
// carries type=="snapshot" for the full book.
func (c *Coinbase) FetchSnapshot(ctx context.Context, symbol string, limit int) (*Snapshot, error) {
	return nil, nil
}
