// Package service wires the hub, dispatcher, gateway and bus ingress into a
// runnable unit.
package service

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/chatbridge/satori/config"
	"github.com/chatbridge/satori/src/gateway"
	"github.com/chatbridge/satori/src/hub"
	"github.com/chatbridge/satori/src/ingress"
	"github.com/chatbridge/satori/src/metrics"
	"github.com/chatbridge/satori/src/types"
)

// Service is the gateway composition root.
type Service struct {
	cfg        *config.Config
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
	routes     *gateway.RouteTable
	gateway    *gateway.Gateway
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu      sync.Mutex
	ln      net.Listener
	server  *fasthttp.Server
	ingress *ingress.NATSIngress
}

// New builds a service from configuration. Routes and the transformer are
// registered between New and Start.
func New(cfg *config.Config, logger zerolog.Logger) *Service {
	cfg.Normalize()

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	h := hub.New(logger, m)
	d := hub.NewDispatcher(h, cfg.Platform, cfg.SelfID, logger, m)
	routes := gateway.NewRouteTable()
	gw := gateway.New(cfg, h, d, routes, logger, m)

	return &Service{
		cfg:        cfg,
		hub:        h,
		dispatcher: d,
		routes:     routes,
		gateway:    gw,
		metrics:    m,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// RegisterRoute binds an API path segment to a handler. Must be called
// before Start.
func (s *Service) RegisterRoute(name string, fn gateway.HandlerFunc) error {
	return s.routes.Register(name, fn)
}

// SetTransformer replaces the internal-message transform.
func (s *Service) SetTransformer(fn types.Transformer) {
	s.dispatcher.SetTransformer(fn)
}

// Dispatch publishes an internal message to all authorized connections.
func (s *Service) Dispatch(msg types.InternalMessage) {
	s.dispatcher.Dispatch(msg)
}

// Hub exposes the connection registry, mainly for inspection.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Addr returns the bound listen address, or "" before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start listens and serves until ctx is cancelled. The bus ingress is
// optional: an unreachable broker leaves the gateway running standalone.
func (s *Service) Start(ctx context.Context) error {
	s.routes.Freeze()

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	server := &fasthttp.Server{
		Handler: s.gateway.Handler(),
		Name:    gateway.Banner,
	}

	s.mu.Lock()
	s.ln = ln
	s.server = server
	s.mu.Unlock()

	s.initIngress()
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("self_url", s.cfg.SelfURL).
		Msg("gateway listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

// initIngress tries to start the NATS ingress. If the broker is not
// reachable, the gateway runs standalone.
func (s *Service) initIngress() {
	cfg := ingress.ConfigFromEnv()
	in := ingress.NewNATSIngress(cfg, s.dispatcher, s.logger)

	if err := in.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("nats ingress unavailable, running standalone")
		return
	}

	s.mu.Lock()
	s.ingress = in
	s.mu.Unlock()
}

// shutdown stops the ingress, the listener and every live connection.
func (s *Service) shutdown() {
	s.mu.Lock()
	in := s.ingress
	server := s.server
	s.mu.Unlock()

	if in != nil {
		if err := in.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("ingress stop error")
		}
	}
	if server != nil {
		if err := server.Shutdown(); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
		}
	}
	s.hub.CloseAll()
	s.logger.Info().Msg("gateway stopped")
}
