// Package server accepts HTTP/2 connections, joins the frames of every stream into
// requests and dispatches them to the router.
package server

import (
	"io"
	"net"
	"sync"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/internal/wire"
	"github.com/indigo-web/h2pair/router"
	"github.com/indigo-web/h2pair/transport"
)

type hooks struct {
	OnStart, OnStop func()
}

type Server struct {
	cfg       *config.Config
	router    *router.Router
	hooks     hooks
	transport transport.Transport
	// closers are released once the server is stopped
	closers []io.Closer

	mu      sync.Mutex
	stopped bool
	conns   map[*wire.Conn]struct{}
}

func New(cfg *config.Config, r *router.Router) *Server {
	return &Server{
		cfg:    cfg,
		router: r,
		conns:  make(map[*wire.Conn]struct{}),
	}
}

// NotifyOnStart calls the callback when the server is bound and about to accept
// connections.
func (s *Server) NotifyOnStart(cb func()) *Server {
	s.hooks.OnStart = cb
	return s
}

// NotifyOnStop calls the callback once the server doesn't accept connections anymore
// and all the clients are already disconnected.
func (s *Server) NotifyOnStop(cb func()) *Server {
	s.hooks.OnStop = cb
	return s
}

// Bind picks the transport, cleartext or TLS, and binds it to cfg.Server.Addr.
func (s *Server) Bind() error {
	t, err := s.newTransport()
	if err != nil {
		return err
	}

	if err = t.Bind(s.cfg.Server.Addr); err != nil {
		return err
	}

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	return nil
}

func (s *Server) newTransport() (transport.Transport, error) {
	tlsSettings := s.cfg.TLS
	switch {
	case !tlsSettings.Enabled:
		return transport.NewTCP(), nil
	case len(tlsSettings.CertFile) > 0 && len(tlsSettings.KeyFile) > 0:
		reloader, err := transport.NewCertReloader(tlsSettings.CertFile, tlsSettings.KeyFile, s.cfg.Logger)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.closers = append(s.closers, reloader)
		s.mu.Unlock()

		return transport.NewTLS(reloader.Config()), nil
	}

	tlsCfg, err := transport.ServerConfig(tlsSettings, s.cfg.Server.Addr)
	if err != nil {
		return nil, err
	}

	return transport.NewTLS(tlsCfg), nil
}

// Addr returns the bound address, or nil if not bound yet.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport == nil {
		return nil
	}

	return s.transport.Addr()
}

// Serve binds the server, unless already bound, and blocks until Stop is called or the
// listener fails.
func (s *Server) Serve() error {
	if s.Addr() == nil {
		if err := s.Bind(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	t, stopped := s.transport, s.stopped
	s.mu.Unlock()

	if stopped {
		s.release()
		_ = t.Close()
		return nil
	}

	callIfNotNil(s.hooks.OnStart)
	err := t.Listen(s.cfg.NET, s.serveConn)
	s.shutdown()
	t.Wait()
	s.release()
	callIfNotNil(s.hooks.OnStop)

	return err
}

// Stop stops accepting new connections and closes the established ones. Serve returns
// once every connection is done.
func (s *Server) Stop() {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}

	s.shutdown()
	s.release()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	s.stopped = true
	conns := make([]*wire.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) release() {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			s.cfg.Logger.Printf("release: %s", err)
		}
	}
}

func (s *Server) serveConn(conn net.Conn) {
	if err := transport.Handshake(conn, s.cfg.NET.ReadTimeout); err != nil {
		s.cfg.Logger.Printf("%s: handshake: %s", conn.RemoteAddr(), err)
		return
	}

	c := newConnection(s.cfg, s.router, conn.RemoteAddr())
	w, err := wire.Server(conn, s.cfg, c)
	if err != nil {
		if !isBenign(err) {
			s.cfg.Logger.Printf("%s: %s", conn.RemoteAddr(), err)
		}

		return
	}

	c.wire = w
	if !s.track(w) {
		_ = w.Close()
		return
	}
	defer s.untrack(w)

	if err = w.Serve(); !isBenign(err) {
		s.cfg.Logger.Printf("%s: %s", conn.RemoteAddr(), err)
	}
}

func (s *Server) track(conn *wire.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *wire.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
