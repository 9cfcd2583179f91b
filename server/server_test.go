package server

import (
	"net"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/headers"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/internal/future"
	"github.com/indigo-web/h2pair/internal/wire"
	"github.com/indigo-web/h2pair/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const waitTimeout = 3 * time.Second

type peer struct {
	settings chan struct{}
	headers  chan wire.HeadersEvent
	data     chan wire.DataEvent
	resets   chan uint32
	errs     chan error
}

func newPeer() *peer {
	return &peer{
		settings: make(chan struct{}, 8),
		headers:  make(chan wire.HeadersEvent, 64),
		data:     make(chan wire.DataEvent, 64),
		resets:   make(chan uint32, 8),
		errs:     make(chan error, 1),
	}
}

func (p *peer) OnSettings() {
	p.settings <- struct{}{}
}

func (p *peer) OnHeaders(ev wire.HeadersEvent) {
	p.headers <- ev
}

func (p *peer) OnReset(streamID uint32, _ http2.ErrCode) {
	p.resets <- streamID
}

func (p *peer) OnError(err error) {
	p.errs <- err
}

func (p *peer) OnData(ev wire.DataEvent) {
	ev.Data = slices.Clone(ev.Data)
	p.data <- ev
}

func receive[T any](t *testing.T, ch <-chan T) T {
	select {
	case value := <-ch:
		return value
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for an event")
		panic("unreachable")
	}
}

func newRouter() *router.Router {
	cfg := getConfig()
	return router.New(nil, cfg.Logger).
		Register("/echo", http.Funcs{
			Post: func(request *http.Request) (*http.Response, error) {
				return request.Respond().
					Header("X-Echo", "yes").
					String(request.Body), nil
			},
		}).
		Register("/panic", http.Funcs{
			Get: func(*http.Request) (*http.Response, error) {
				panic("boom")
			},
		})
}

func run(t *testing.T, cfg *config.Config) *Server {
	cfg.Server.Addr = "127.0.0.1:0"
	srv := New(cfg, newRouter())
	require.NoError(t, srv.Bind())

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve()
	}()

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(waitTimeout):
			assert.Fail(t, "server didn't stop in time")
		}
	})

	return srv
}

func dial(t *testing.T, srv *Server) (*wire.Conn, *peer) {
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)

	p := newPeer()
	c, err := wire.Client(conn, getConfig(), p)
	require.NoError(t, err)
	go func() {
		_ = c.Serve()
	}()
	t.Cleanup(func() {
		_ = c.Close()
	})

	receive(t, p.settings)
	return c, p
}

func request(m, path string) []hpack.HeaderField {
	return []hpack.HeaderField{
		{Name: headers.Method, Value: m},
		{Name: headers.Scheme, Value: "http"},
		{Name: headers.Authority, Value: "localhost"},
		{Name: headers.Path, Value: path},
	}
}

func awaitResponse(t *testing.T, p *peer) *wireResponse {
	ev := receive(t, p.headers)
	response := &wireResponse{StreamID: ev.StreamID, Headers: headers.FromFields(ev.Fields).Map()}
	if ev.EndStream {
		return response
	}

	for {
		chunk := receive(t, p.data)
		response.Body += string(chunk.Data)
		if chunk.EndStream {
			return response
		}
	}
}

type wireResponse struct {
	StreamID uint32
	Headers  map[string]string
	Body     string
}

func TestServer(t *testing.T) {
	srv := run(t, getConfig())

	t.Run("not found", func(t *testing.T) {
		c, p := dial(t, srv)
		require.NoError(t, c.WriteStream(3, request("GET", "/nowhere"), nil, future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, uint32(3), response.StreamID)
		require.Equal(t, "404", response.Headers[headers.Status])
		require.Equal(t, "text/plain", response.Headers[headers.ContentType])
		_, err := uuid.Parse(response.Headers[headers.RequestID])
		require.NoError(t, err)
	})

	t.Run("echo", func(t *testing.T) {
		c, p := dial(t, srv)
		require.NoError(t, c.WriteStream(3, request("POST", "/echo"), []byte("Hello, world!"), future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, "200", response.Headers[headers.Status])
		require.Equal(t, "13", response.Headers[headers.ContentLength])
		require.Equal(t, "yes", response.Headers["x-echo"])
		require.Equal(t, "Hello, world!", response.Body)
	})

	t.Run("sequential streams", func(t *testing.T) {
		c, p := dial(t, srv)
		for i, id := range []uint32{3, 5, 7} {
			body := strings.Repeat("x", i+1)
			require.NoError(t, c.WriteStream(id, request("POST", "/echo"), []byte(body), future.New()))
		}

		for i, id := range []uint32{3, 5, 7} {
			response := awaitResponse(t, p)
			require.Equal(t, id, response.StreamID)
			require.Equal(t, strings.Repeat("x", i+1), response.Body)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		c, p := dial(t, srv)
		require.NoError(t, c.WriteStream(3, request("PUT", "/echo"), []byte("x"), future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, "405", response.Headers[headers.Status])
	})

	t.Run("not implemented", func(t *testing.T) {
		c, p := dial(t, srv)
		require.NoError(t, c.WriteStream(3, request("PATCH", "/echo"), nil, future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, "501", response.Headers[headers.Status])
	})

	t.Run("panic", func(t *testing.T) {
		c, p := dial(t, srv)
		require.NoError(t, c.WriteStream(3, request("GET", "/panic"), nil, future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, "500", response.Headers[headers.Status])
	})

	t.Run("bad request", func(t *testing.T) {
		c, p := dial(t, srv)
		fields := []hpack.HeaderField{{Name: headers.Method, Value: "GET"}}
		require.NoError(t, c.WriteStream(3, fields, nil, future.New()))

		response := awaitResponse(t, p)
		require.Equal(t, "400", response.Headers[headers.Status])
		require.NotContains(t, response.Headers, headers.RequestID)
	})
}

func TestBodyTooLarge(t *testing.T) {
	cfg := getConfig()
	cfg.Body.MaxSize = 4
	srv := run(t, cfg)

	c, p := dial(t, srv)
	require.NoError(t, c.WriteStream(3, request("POST", "/echo"), []byte("too long"), future.New()))
	response := awaitResponse(t, p)
	require.Equal(t, "413", response.Headers[headers.Status])

	// the connection stays usable
	require.NoError(t, c.WriteStream(5, request("POST", "/echo"), []byte("ok"), future.New()))
	response = awaitResponse(t, p)
	require.Equal(t, uint32(5), response.StreamID)
	require.Equal(t, "ok", response.Body)
}

func TestHooks(t *testing.T) {
	cfg := getConfig()
	cfg.Server.Addr = "127.0.0.1:0"

	var started, stopped atomic.Bool
	srv := New(cfg, newRouter()).
		NotifyOnStart(func() { started.Store(true) }).
		NotifyOnStop(func() { stopped.Store(true) })

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve()
	}()

	require.Eventually(t, func() bool {
		return started.Load() && srv.Addr() != nil
	}, waitTimeout, 10*time.Millisecond)

	_, p := dial(t, srv)
	srv.Stop()

	require.NoError(t, receive(t, served))
	require.True(t, stopped.Load())
	// GOAWAY or a reset socket, depending on the timing
	require.Error(t, receive(t, p.errs))
}

func TestStopBeforeServe(t *testing.T) {
	cfg := getConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	srv := New(cfg, newRouter())
	require.NoError(t, srv.Bind())
	srv.Stop()

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve()
	}()

	require.NoError(t, receive(t, done))
}

func TestEncodeResponse(t *testing.T) {
	response := http.NewResponse().
		Code(status.Teapot).
		Header("X-Custom", "1").
		Header("Connection", "close").
		Header("X-Request-ID", "forged").
		String("brew")

	fields, body := encodeResponse(response.Reveal(), "abc")
	require.Equal(t, []hpack.HeaderField{
		{Name: ":status", Value: "418"},
		{Name: "content-type", Value: "text/plain"},
		{Name: "content-length", Value: "4"},
		{Name: "x-request-id", Value: "abc"},
		{Name: "x-custom", Value: "1"},
	}, fields)
	require.Equal(t, "brew", string(body))
}
