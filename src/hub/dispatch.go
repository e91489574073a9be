package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbridge/satori/src/metrics"
	"github.com/chatbridge/satori/src/types"
)

// Dispatcher translates internal messages into Event envelopes and pushes
// them to every authorized connection. Dispatch is fire-and-forget: the
// transform and all sends run off the caller's goroutine, and a failure on
// one connection never affects the others.
type Dispatcher struct {
	hub      *Hub
	seq      *Sequence
	platform string
	selfID   string
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	transform types.Transformer

	// sendMu serializes the id draw with the enqueue: every connection must
	// observe event ids in the order they were drawn, even when dispatches
	// overlap.
	sendMu sync.Mutex
}

// NewDispatcher creates a dispatcher with the passthrough transformer.
func NewDispatcher(h *Hub, platform, selfID string, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		hub:       h,
		seq:       &Sequence{},
		platform:  platform,
		selfID:    selfID,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		metrics:   m,
		transform: PassthroughTransformer,
	}
}

// SetTransformer replaces the internal-message transform. A nil transformer
// is ignored.
func (d *Dispatcher) SetTransformer(fn types.Transformer) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.transform = fn
	d.mu.Unlock()
}

// Dispatch fans msg out to all authorized connections and returns immediately.
func (d *Dispatcher) Dispatch(msg types.InternalMessage) {
	go d.run(msg)
}

func (d *Dispatcher) run(msg types.InternalMessage) {
	d.mu.RLock()
	transform := d.transform
	d.mu.RUnlock()

	bodies, err := transform(msg)
	if err != nil {
		d.logger.Error().Err(err).Str("type", msg.Type).Msg("transform failed, dispatch dropped")
		return
	}
	if len(bodies) == 0 {
		return
	}

	clients := d.hub.Snapshot()
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	for _, body := range bodies {
		for _, client := range clients {
			d.send(client, body)
		}
	}
}

func (d *Dispatcher) send(client *Client, body types.EventBody) {
	env := types.Envelope{Op: types.OpEvent, Body: d.stamp(body)}
	if !client.Enqueue(env) {
		d.metrics.SendFailed()
		d.logger.Warn().Str("client_id", client.ID).Msg("send failed, event dropped for connection")
		return
	}
	d.metrics.EventSent()
}

// SendDiagnostic delivers a warning event to a single connection.
func (d *Dispatcher) SendDiagnostic(client *Client, eventType string) {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	env := types.Envelope{Op: types.OpEvent, Body: d.stamp(types.EventBody{"type": eventType})}
	if !client.Enqueue(env) {
		d.logger.Warn().Str("client_id", client.ID).Str("type", eventType).Msg("diagnostic dropped")
	}
}

// stamp clones body and fills the envelope-level fields. Each call draws a
// fresh id, so ids are unique per (event, connection) pair.
func (d *Dispatcher) stamp(body types.EventBody) types.EventBody {
	out := body.Clone()
	out["id"] = d.seq.Next()
	out["platform"] = d.platform
	out["self_id"] = d.selfID
	out["timestamp"] = time.Now().UnixMilli()
	return out
}

// PassthroughTransformer produces a single event body carrying the message
// type plus any payload fields.
func PassthroughTransformer(msg types.InternalMessage) ([]types.EventBody, error) {
	body := types.EventBody{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	body["type"] = msg.Type
	return []types.EventBody{body}, nil
}
