package ingress

import (
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/satori/src/types"
)

// mockSink records dispatched internal messages.
type mockSink struct {
	mu       sync.Mutex
	received []types.InternalMessage
}

func (m *mockSink) Dispatch(msg types.InternalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, msg)
}

func (m *mockSink) messages() []types.InternalMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.InternalMessage, len(m.received))
	copy(cp, m.received)
	return cp
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "satori.events", cfg.Subject)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SATORI_NATS_URL", "nats://bus.example.net:4222")
	t.Setenv("SATORI_NATS_SUBJECT", "bots.events")

	cfg := ConfigFromEnv()
	assert.Equal(t, "nats://bus.example.net:4222", cfg.URL)
	assert.Equal(t, "bots.events", cfg.Subject)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "satori.events", cfg.Subject)
}

func TestHandleDecodesBusMessage(t *testing.T) {
	sink := &mockSink{}
	in := NewNATSIngress(DefaultConfig(), sink, zerolog.Nop())

	in.handle(&nats.Msg{
		Subject: "satori.events",
		Data:    []byte(`{"type":"message-created","payload":{"content":"hi"}}`),
	})

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "message-created", msgs[0].Type)
	assert.JSONEq(t, `{"content":"hi"}`, string(msgs[0].Payload))
}

func TestHandleSkipsUndecodableMessage(t *testing.T) {
	sink := &mockSink{}
	in := NewNATSIngress(DefaultConfig(), sink, zerolog.Nop())

	in.handle(&nats.Msg{Subject: "satori.events", Data: []byte(`not json`)})

	assert.Empty(t, sink.messages())
}

func TestAvailableFalseBeforeStart(t *testing.T) {
	in := NewNATSIngress(DefaultConfig(), &mockSink{}, zerolog.Nop())
	assert.False(t, in.Available())
}

func TestStopWithoutStart(t *testing.T) {
	in := NewNATSIngress(DefaultConfig(), &mockSink{}, zerolog.Nop())
	require.NoError(t, in.Stop())
	assert.False(t, in.Available())
}
