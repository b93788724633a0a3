package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nhbmarket/core/events"
	"nhbmarket/native/market"
	"nhbmarket/observability/metrics"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

type streamMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	messages   chan []byte
	collection string
	assetID    string
}

func (s *subscriber) matches(attrs map[string]string) bool {
	if s.collection != "" && attrs["collection"] != s.collection {
		return false
	}
	if s.assetID != "" && attrs["assetId"] != s.assetID {
		return false
	}
	return true
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// lose messages instead of blocking the engine.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	msg := streamMessage{Type: evt.EventType(), Attributes: map[string]string{}}
	if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
		msg.Attributes = payload.Event().Attributes
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if !sub.matches(msg.Attributes) {
			continue
		}
		select {
		case sub.messages <- data:
		default:
		}
	}
}

func (h *Hub) subscribe(collection, assetID string) (*subscriber, func()) {
	sub := &subscriber{
		messages:   make(chan []byte, subscriberBuffer),
		collection: collection,
		assetID:    assetID,
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	metrics.Market().SetSubscribers(len(h.subscribers))
	h.mu.Unlock()
	return sub, func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		metrics.Market().SetSubscribers(len(h.subscribers))
		h.mu.Unlock()
	}
}

// Subscribers reports the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.limiter.allow(clientID(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	collection := strings.TrimSpace(r.URL.Query().Get("collection"))
	assetID := strings.TrimSpace(r.URL.Query().Get("assetId"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	sub, cancel := s.hub.subscribe(collection, assetID)
	defer cancel()
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, sub); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-sub.messages:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// MetricsEmitter records committed events and settlement volume.
type MetricsEmitter struct{}

// Emit implements events.Emitter.
func (MetricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m := metrics.Market()
	m.RecordEvent(evt.EventType())
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	var offer string
	switch evt.EventType() {
	case market.EventTypeSold:
		offer = "listing"
	case market.EventTypeAuctionEnded:
		offer = "auction"
	default:
		return
	}
	attrs := payload.Event().Attributes
	if offer == "auction" && attrs["winner"] == "" {
		return
	}
	m.RecordSettlement(offer, attrAmount(attrs, "amount"), attrAmount(attrs, "fee"))
}

func attrAmount(attrs map[string]string, key string) *big.Int {
	value, ok := new(big.Int).SetString(attrs[key], 10)
	if !ok {
		return new(big.Int)
	}
	return value
}

var (
	_ events.Emitter = (*Hub)(nil)
	_ events.Emitter = MetricsEmitter{}
)
