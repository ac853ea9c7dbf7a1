// Package alpaca handles interactions with the Alpaca market data stream and
// trading API.
package alpaca

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrConnectionLimit is returned when the venue rejects a subscription
	// because the account has too many open streams (code 406).
	ErrConnectionLimit = errors.New("alpaca: connection limit exceeded")
	// ErrAuth is returned when the auth handshake is rejected.
	ErrAuth = errors.New("alpaca: authentication failed")
)

// Channel is the market data stream a tick is derived from.
type Channel string

const (
	ChannelTrades Channel = "trades"
	ChannelQuotes Channel = "quotes"
	ChannelBars   Channel = "bars"
)

// ParseChannel maps a configured channel name, defaulting to trades.
func ParseChannel(s string) Channel {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelQuotes:
		return ChannelQuotes
	case ChannelBars:
		return ChannelBars
	}
	return ChannelTrades
}

// recordType is the value of the T field for records of this channel.
func (c Channel) recordType() string {
	switch c {
	case ChannelQuotes:
		return "q"
	case ChannelBars:
		return "b"
	}
	return "t"
}

type authMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeMessage renders as {"action":"subscribe","<channel>":["SYM"]}.
func subscribeMessage(ch Channel, symbol string) map[string]any {
	return map[string]any{
		"action":    "subscribe",
		string(ch): []string{strings.ToUpper(symbol)},
	}
}

// Record is one element of an inbound stream message. Only the fields the
// bot consumes are decoded. C is kept raw because trades and quotes carry a
// condition array under the same key that bars use for the close price, and
// Timestamp must exist so that "t" is not folded onto T.
type Record struct {
	T         string          `json:"T"`
	Timestamp string          `json:"t"`
	Symbol    string          `json:"S"`
	Price     float64         `json:"p"`
	Size      float64         `json:"s"`
	BidPrice  float64         `json:"bp"`
	AskPrice  float64         `json:"ap"`
	C         json.RawMessage `json:"c"`
	Code      int             `json:"code"`
	Msg       string          `json:"msg"`
}

// Close returns the bar close price.
func (r Record) Close() float64 {
	if len(r.C) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(string(r.C), 64)
	if err != nil {
		return 0
	}
	return v
}

// decodeRecords splits an inbound message into records. Elements that fail
// to decode are skipped; a message that is not an array yields nothing.
func decodeRecords(msg []byte) []Record {
	var raw []json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal(r, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// firstError returns the first error record of msg.
func firstError(msg []byte) (Record, bool) {
	for _, r := range decodeRecords(msg) {
		if r.T == "error" {
			return r, true
		}
	}
	return Record{}, false
}

// OrderRequest is the body of POST /v2/orders.
type OrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	Qty           int    `json:"qty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// OrderResponse is the subset of the order object the router uses.
type OrderResponse struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Status         string  `json:"status"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
}

// FilledPrice returns the venue's average fill price, if one was reported.
func (r *OrderResponse) FilledPrice() (float64, bool) {
	if r == nil || r.FilledAvgPrice == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(*r.FilledAvgPrice, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// APIError is the error body returned with non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return "alpaca API error (status " + strconv.Itoa(e.StatusCode) + ", code " + strconv.Itoa(e.Code) + "): " + e.Message
}
