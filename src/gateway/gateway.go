// Package gateway exposes the internal event/command bus over HTTP and
// WebSocket on a single listen endpoint.
package gateway

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/chatbridge/satori/config"
	"github.com/chatbridge/satori/src/hub"
	"github.com/chatbridge/satori/src/metrics"
)

// Banner is reported in the Server and X-Powered-By headers of every response.
const Banner = "chatbridge-satori/0.1.0"

const (
	apiPrefix   = "/v1/"
	eventPath   = apiPrefix + "event"
	metricsPath = "/metrics"
)

//go:embed landing.html
var landingPage []byte

// Gateway routes HTTP command invocations and WebSocket event subscriptions.
type Gateway struct {
	cfg        *config.Config
	app        *fiber.App
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
	routes     *RouteTable
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	upgrader   websocket.FastHTTPUpgrader

	authTimeout time.Duration
}

// New creates a gateway. The route table may still be open; the service
// freezes it before serving.
func New(cfg *config.Config, h *hub.Hub, d *hub.Dispatcher, routes *RouteTable,
	logger zerolog.Logger, m *metrics.Metrics) *Gateway {

	g := &Gateway{
		cfg:        cfg,
		hub:        h,
		dispatcher: d,
		routes:     routes,
		logger:     logger.With().Str("component", "gateway").Logger(),
		metrics:    m,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		authTimeout: cfg.AuthTimeout(),
	}

	app := fiber.New()
	app.Use(g.banner)
	app.All("/", g.handle)
	app.All("/*", g.handle)
	g.app = app
	return g
}

// Handler returns the fasthttp handler serving the whole gateway: the
// WebSocket upgrade and metrics paths are peeled off before the fiber app.
// Those paths skip the fiber middleware, so the banner headers are stamped
// here.
func (g *Gateway) Handler() fasthttp.RequestHandler {
	fiberHandler := g.app.Handler()
	wsHandler := g.wsHandler()
	metricsHandler := g.metrics.Handler()

	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case eventPath:
			ctx.Response.Header.Set(fasthttp.HeaderServer, Banner)
			ctx.Response.Header.Set("X-Powered-By", Banner)
			wsHandler(ctx)
			return
		case metricsPath:
			if g.cfg.Metrics && metricsHandler != nil {
				ctx.Response.Header.Set(fasthttp.HeaderServer, Banner)
				ctx.Response.Header.Set("X-Powered-By", Banner)
				metricsHandler(ctx)
				return
			}
		}
		fiberHandler(ctx)
	}
}

// banner stamps the fixed product headers on every response and counts the
// final status.
func (g *Gateway) banner(c fiber.Ctx) error {
	c.Set(fiber.HeaderServer, Banner)
	c.Set("X-Powered-By", Banner)
	err := c.Next()
	g.metrics.HTTPRequest(c.Response().StatusCode())
	return err
}

// handle runs the request pipeline, short-circuiting on the first applicable
// condition.
func (g *Gateway) handle(c fiber.Ctx) error {
	path := c.Path()
	if path == "" {
		return g.fail(c, fiber.StatusBadRequest, "bad request")
	}
	if path == "/" {
		return g.landing(c)
	}
	if g.cfg.Token != "" {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+g.cfg.Token {
			return g.fail(c, fiber.StatusUnauthorized, "unauthorized")
		}
	}
	if !strings.HasPrefix(path, apiPrefix) {
		return g.fail(c, fiber.StatusNotFound, "not found")
	}
	handler, ok := g.routes.Lookup(strings.TrimPrefix(path, apiPrefix))
	if !ok {
		return g.fail(c, fiber.StatusNotFound, "not found")
	}
	if c.Method() != fiber.MethodPost {
		return g.fail(c, fiber.StatusBadRequest, "bad request")
	}

	rc := &RequestContext{Ctx: c}
	result, err := g.invoke(handler, rc)
	if err != nil {
		g.logger.Error().Err(err).Str("path", path).Msg("handler failed")
		return g.fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	if rc.Responded() {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// invoke runs a handler, converting panics into errors so a misbehaving
// handler can never take the gateway down.
func (g *Gateway) invoke(fn HandlerFunc, rc *RequestContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(rc)
}

// landing serves the static landing page and returns immediately, so no
// later pipeline stage can write a second response.
func (g *Gateway) landing(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/html; charset=UTF-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Status(fiber.StatusOK).Send(landingPage)
}

func (g *Gateway) fail(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).SendString(msg)
}
