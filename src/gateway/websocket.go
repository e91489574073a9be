package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/chatbridge/satori/src/hub"
	"github.com/chatbridge/satori/src/types"
)

// closeUnauthorized is sent for both the identify-failure and timeout paths.
const closeUnauthorized = 3000

// wsHandler returns a raw fasthttp handler for WebSocket upgrades at the
// event path.
func (g *Gateway) wsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		clientID := uuid.New().String()
		err := g.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			g.serveConn(clientID, &wsConn{conn})
		})
		if err != nil {
			g.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// serveConn runs the per-connection protocol: it arms the authorization
// timer, pumps inbound frames through the state machine, and removes the
// connection from the registry when the transport ends.
func (g *Gateway) serveConn(id string, conn types.Conn) {
	client := hub.NewClient(id, conn)
	logger := g.logger.With().Str("client_id", id).Logger()
	logger.Debug().Msg("connection established")

	go client.WritePump()

	// The timer checks state at fire time; reaching Authorized first makes
	// it a no-op.
	timer := time.AfterFunc(g.authTimeout, func() {
		if client.State() == hub.StateUnauthenticated {
			logger.Warn().Msg("identify deadline passed, closing")
			client.CloseStatus(closeUnauthorized, "Unauthorized")
		}
	})
	defer timer.Stop()

	defer func() {
		g.hub.Remove(client)
		client.Close()
		logger.Debug().Msg("connection closed")
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleFrame(client, data, logger)
	}
}

// handleFrame decodes and applies one inbound frame. A malformed frame is
// dropped and the connection stays open.
func (g *Gateway) handleFrame(client *hub.Client, data []byte, logger zerolog.Logger) {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn().Err(err).Msg("malformed frame dropped")
		return
	}

	switch frame.Op {
	case types.OpPing:
		client.Enqueue(types.Envelope{Op: types.OpPong})
	case types.OpIdentify:
		g.handleIdentify(client, frame.Body, logger)
	default:
		logger.Debug().Int("op", int(frame.Op)).Msg("unknown opcode")
		g.dispatcher.SendDiagnostic(client, types.EventTypeUnknownOpcode)
	}
}

func (g *Gateway) handleIdentify(client *hub.Client, raw json.RawMessage, logger zerolog.Logger) {
	if client.State() == hub.StateAuthorized {
		logger.Debug().Msg("duplicate identify")
		g.dispatcher.SendDiagnostic(client, types.EventTypeIdentifyDuplicate)
		return
	}

	var body types.IdentifyBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			logger.Warn().Err(err).Msg("malformed identify body dropped")
			return
		}
	}

	if g.cfg.Token != "" && body.Token != g.cfg.Token {
		logger.Warn().Msg("identify rejected, closing")
		client.CloseStatus(closeUnauthorized, "Unauthorized")
		return
	}

	if !client.Authorize() {
		// Lost the transition race to a concurrent identify.
		g.dispatcher.SendDiagnostic(client, types.EventTypeIdentifyDuplicate)
		return
	}

	g.hub.Add(client)
	client.Enqueue(types.Envelope{
		Op: types.OpReady,
		Body: types.ReadyBody{Logins: []types.Login{{
			Platform: g.cfg.Platform,
			SelfID:   g.cfg.SelfID,
			Status:   types.StatusOnline,
		}}},
	})
	logger.Info().Msg("client authorized")
}

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }

func (w *wsConn) CloseStatus(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *wsConn) Close() error { return w.conn.Close() }
