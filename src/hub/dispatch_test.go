package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/satori/src/types"
)

func newTestDispatcher(h *Hub) *Dispatcher {
	return NewDispatcher(h, "test-platform", "test-self", zerolog.Nop(), nil)
}

func eventsOf(conn *mockConn) []types.EventBody {
	var out []types.EventBody
	for _, env := range conn.getWritten() {
		if env.Op != types.OpEvent {
			continue
		}
		if body, ok := env.Body.(types.EventBody); ok {
			out = append(out, body)
		}
	}
	return out
}

func TestDispatchFansOutToAllConnections(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)
	d.SetTransformer(func(msg types.InternalMessage) ([]types.EventBody, error) {
		return []types.EventBody{
			{"type": "message-created", "content": "a"},
			{"type": "message-created", "content": "b"},
		}, nil
	})

	conns := make([]*mockConn, 3)
	for i, id := range []string{"c1", "c2", "c3"} {
		_, conns[i] = newAuthorizedClient(t, h, id)
	}

	d.Dispatch(types.InternalMessage{Type: "message-created"})

	// Two bodies to three connections: exactly six frames, two per connection.
	require.Eventually(t, func() bool {
		total := 0
		for _, conn := range conns {
			total += len(eventsOf(conn))
		}
		return total == 6
	}, time.Second, 10*time.Millisecond)

	seen := make(map[int64]bool)
	for _, conn := range conns {
		events := eventsOf(conn)
		require.Len(t, events, 2)
		for _, body := range events {
			id, ok := body["id"].(int64)
			require.True(t, ok, "event body missing id")
			assert.False(t, seen[id], "id %d reused", id)
			seen[id] = true
			assert.Equal(t, "test-platform", body["platform"])
			assert.Equal(t, "test-self", body["self_id"])
			assert.NotZero(t, body["timestamp"])
		}
	}
	assert.Len(t, seen, 6)
}

func TestDispatchIdsStrictlyIncreasingPerConnection(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)
	_, conn := newAuthorizedClient(t, h, "c1")

	for i := 0; i < 5; i++ {
		d.Dispatch(types.InternalMessage{Type: "tick"})
		want := i + 1
		require.Eventually(t, func() bool {
			return len(eventsOf(conn)) == want
		}, time.Second, 5*time.Millisecond)
	}

	events := eventsOf(conn)
	prev := int64(0)
	for _, body := range events {
		id := body["id"].(int64)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestDispatchOverlappingCallsKeepIdsIncreasingPerConnection(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)

	conns := make([]*mockConn, 3)
	for i, id := range []string{"c1", "c2", "c3"} {
		_, conns[i] = newAuthorizedClient(t, h, id)
	}

	// Fire dispatches from several goroutines with no settling in between,
	// so the id draw and the enqueue race unless they are atomic.
	const callers = 8
	const perCaller = 25
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				d.Dispatch(types.InternalMessage{Type: "tick"})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for _, conn := range conns {
			if len(eventsOf(conn)) != callers*perCaller {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	for i, conn := range conns {
		prev := int64(0)
		for _, body := range eventsOf(conn) {
			id, ok := body["id"].(int64)
			require.True(t, ok, "event body missing id")
			require.Greater(t, id, prev, "connection %d saw ids out of order", i)
			prev = id
		}
	}
}

func TestDispatchSurvivesClosedConnection(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)

	closed, _ := newAuthorizedClient(t, h, "closed")
	_, liveConn := newAuthorizedClient(t, h, "live")

	// Close one connection but leave it in the snapshot path.
	closed.Close()

	d.Dispatch(types.InternalMessage{Type: "tick"})

	require.Eventually(t, func() bool {
		return len(eventsOf(liveConn)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchTransformFailureDropsMessage(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)
	d.SetTransformer(func(msg types.InternalMessage) ([]types.EventBody, error) {
		return nil, errors.New("boom")
	})
	_, conn := newAuthorizedClient(t, h, "c1")

	d.Dispatch(types.InternalMessage{Type: "broken"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, eventsOf(conn))
}

func TestDispatchZeroBodiesSendsNothing(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)
	d.SetTransformer(func(msg types.InternalMessage) ([]types.EventBody, error) {
		return nil, nil
	})
	_, conn := newAuthorizedClient(t, h, "c1")

	d.Dispatch(types.InternalMessage{Type: "silent"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, eventsOf(conn))
}

func TestSendDiagnostic(t *testing.T) {
	h := newTestHub()
	d := newTestDispatcher(h)
	client, conn := newAuthorizedClient(t, h, "c1")

	d.SendDiagnostic(client, types.EventTypeIdentifyDuplicate)

	require.Eventually(t, func() bool {
		return len(eventsOf(conn)) == 1
	}, time.Second, 10*time.Millisecond)

	body := eventsOf(conn)[0]
	assert.Equal(t, types.EventTypeIdentifyDuplicate, body["type"])
	assert.NotNil(t, body["id"])
}

func TestPassthroughTransformer(t *testing.T) {
	bodies, err := PassthroughTransformer(types.InternalMessage{
		Type:    "message-created",
		Payload: json.RawMessage(`{"content":"hello"}`),
	})
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Equal(t, "message-created", bodies[0]["type"])
	assert.Equal(t, "hello", bodies[0]["content"])
}

func TestPassthroughTransformerRejectsBadPayload(t *testing.T) {
	_, err := PassthroughTransformer(types.InternalMessage{
		Type:    "broken",
		Payload: json.RawMessage(`{not json`),
	})
	require.Error(t, err)
}
