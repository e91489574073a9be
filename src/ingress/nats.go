// Package ingress feeds the dispatcher from the internal NATS event bus.
package ingress

import (
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/chatbridge/satori/src/types"
)

// Sink receives internal messages taken off the bus.
// Implemented by hub.Dispatcher.
type Sink interface {
	Dispatch(msg types.InternalMessage)
}

// NATSIngress subscribes to the internal event bus and forwards each decoded
// message to the sink.
type NATSIngress struct {
	cfg    *Config
	sink   Sink
	logger zerolog.Logger

	mu     sync.RWMutex
	conn   *nats.Conn
	sub    *nats.Subscription
	active bool
}

// NewNATSIngress creates an ingress that reads internal messages from NATS.
func NewNATSIngress(cfg *Config, sink Sink, logger zerolog.Logger) *NATSIngress {
	return &NATSIngress{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With().Str("component", "nats-ingress").Logger(),
	}
}

// Start connects and subscribes to the configured subject.
func (n *NATSIngress) Start() error {
	conn, err := nats.Connect(n.cfg.URL, nats.Name("satori-gateway"))
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(n.cfg.Subject, n.handle)
	if err != nil {
		conn.Close()
		return err
	}

	n.mu.Lock()
	n.conn = conn
	n.sub = sub
	n.active = true
	n.mu.Unlock()

	n.logger.Info().
		Str("url", n.cfg.URL).
		Str("subject", n.cfg.Subject).
		Msg("nats ingress started")
	return nil
}

// handle decodes one bus message and forwards it to the sink. A message that
// does not decode is logged and skipped.
func (n *NATSIngress) handle(msg *nats.Msg) {
	var im types.InternalMessage
	if err := json.Unmarshal(msg.Data, &im); err != nil {
		n.logger.Error().Err(err).Msg("failed to decode bus message")
		return
	}
	n.sink.Dispatch(im)
}

// Stop unsubscribes and closes the NATS connection.
func (n *NATSIngress) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.active = false
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	return nil
}

// Available reports whether the ingress is connected.
func (n *NATSIngress) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.active
}
