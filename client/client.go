// Package client sends requests over a single HTTP/2 connection and correlates the
// responses with the streams they were sent on.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/http/headers"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/internal/future"
	"github.com/indigo-web/h2pair/internal/wire"
	"github.com/indigo-web/h2pair/kv"
	"github.com/indigo-web/h2pair/transport"
	"golang.org/x/net/http2"
)

var (
	ErrClosed            = wire.ErrClosed
	ErrStreamReset       = errors.New("stream reset by the server")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSettingsTimeout   = errors.New("server didn't send its settings in time")
)

// ResponseHandler is called from the read loop for every response matching a pending
// stream, right before the stream is resolved.
type ResponseHandler func(*Response)

type Client struct {
	cfg        *config.Config
	conn       *wire.Conn
	registry   *Registry
	onResponse ResponseHandler
	authority  string
	scheme     string

	// mu is the send lock: stream ids must be queued in the order they are allocated in
	mu  sync.Mutex
	ids StreamIDs

	capturedMu sync.Mutex
	captured   map[uint32]*Response

	settings     chan struct{}
	settingsOnce sync.Once

	// inbound are partially received responses. Accessed by the read loop only.
	inbound map[uint32]*Response
}

// Dial connects to cfg.Client.Addr, starts the read loop and waits for the server's
// settings, all bounded by cfg.Client.Timeout. onResponse may be nil.
func Dial(ctx context.Context, cfg *config.Config, onResponse ResponseHandler) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Client.Timeout)
	defer cancel()

	conn, err := transport.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Client.Addr, err)
	}

	c := &Client{
		cfg:        cfg,
		registry:   NewRegistry(cfg.Logger),
		onResponse: onResponse,
		authority:  cfg.Client.Addr,
		scheme:     "http",
		captured:   make(map[uint32]*Response),
		settings:   make(chan struct{}),
		inbound:    make(map[uint32]*Response),
	}

	if cfg.TLS.Enabled {
		c.scheme = "https"
	}

	c.conn, err = wire.Client(conn, cfg, listener{c})
	if err != nil {
		return nil, err
	}

	go c.serve()

	select {
	case <-c.settings:
		return c, nil
	case <-c.conn.Done():
		return nil, c.conn.Err()
	case <-ctx.Done():
		_ = c.conn.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSettingsTimeout
		}

		return nil, ctx.Err()
	}
}

func (c *Client) serve() {
	if err := c.conn.Serve(); !errors.Is(err, wire.ErrClosed) {
		c.cfg.Logger.Printf("connection to %s terminated: %s", c.authority, err)
	}
}

// Send allocates a stream, registers its tokens and queues the request. The response
// is awaited by AwaitAll.
func (c *Client) Send(request Request) (uint32, error) {
	return c.send(request, false)
}

func (c *Client) send(request Request, capture bool) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	streamID := c.ids.Next()
	write, response := future.New(), future.New()
	if err := c.registry.Register(streamID, write, response); err != nil {
		return 0, err
	}

	if capture {
		c.capturedMu.Lock()
		c.captured[streamID] = nil
		c.capturedMu.Unlock()
	}

	fields, body := request.Encode(c.authority, c.scheme)
	if err := c.conn.WriteStream(streamID, fields, body, write); err != nil {
		response.Fail(err)
		return streamID, err
	}

	return streamID, nil
}

// AwaitAll waits for every pending stream, see Registry.AwaitAll.
func (c *Client) AwaitAll(timeout time.Duration) error {
	return c.registry.AwaitAll(timeout)
}

// Pending returns the number of streams not awaited yet.
func (c *Client) Pending() int {
	return c.registry.Len()
}

// Do sends the request and waits for every pending stream with the configured timeout,
// returning the response to this very request.
func (c *Client) Do(request Request) (*Response, error) {
	streamID, err := c.send(request, true)
	defer c.release(streamID)
	if err != nil {
		return nil, err
	}

	if err = c.AwaitAll(c.cfg.Client.Timeout); err != nil {
		return nil, err
	}

	c.capturedMu.Lock()
	defer c.capturedMu.Unlock()

	return c.captured[streamID], nil
}

func (c *Client) release(streamID uint32) {
	c.capturedMu.Lock()
	delete(c.captured, streamID)
	c.capturedMu.Unlock()
}

// Close sends GOAWAY and closes the connection. Pending streams fail with ErrClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) complete(response *Response) {
	delete(c.inbound, response.StreamID)

	c.capturedMu.Lock()
	if _, found := c.captured[response.StreamID]; found {
		c.captured[response.StreamID] = response
	}
	c.capturedMu.Unlock()

	c.registry.ResolveWith(response.StreamID, func() {
		if c.onResponse != nil {
			c.onResponse(response)
		}
	})
}

func (c *Client) malformed(streamID uint32, reason string) {
	delete(c.inbound, streamID)
	_ = c.conn.Reset(streamID, http2.ErrCodeProtocol)
	c.registry.Fail(streamID, fmt.Errorf("%w: %s", ErrMalformedResponse, reason))
}

type listener struct {
	c *Client
}

func (l listener) OnSettings() {
	l.c.settingsOnce.Do(func() {
		close(l.c.settings)
	})
}

func (l listener) OnHeaders(ev wire.HeadersEvent) {
	if response, found := l.c.inbound[ev.StreamID]; found {
		// trailers
		response.Headers.Merge(headersOf(ev))
		if ev.EndStream {
			l.c.complete(response)
		}

		return
	}

	value, found := headers.Pseudo(ev.Fields, headers.Status)
	if !found {
		l.c.malformed(ev.StreamID, "no :status")
		return
	}

	code, ok := status.Parse(value)
	if !ok {
		l.c.malformed(ev.StreamID, "bad :status "+value)
		return
	}

	if code < 200 && !ev.EndStream {
		// informational responses precede the final one
		return
	}

	response := &Response{
		StreamID: ev.StreamID,
		Code:     code,
		Headers:  headersOf(ev),
	}

	if ev.EndStream {
		l.c.complete(response)
		return
	}

	l.c.inbound[ev.StreamID] = response
}

func (l listener) OnData(ev wire.DataEvent) {
	response, found := l.c.inbound[ev.StreamID]
	if !found {
		l.c.cfg.Logger.Printf("unknown stream id %d, dropping %d bytes of data", ev.StreamID, len(ev.Data))
		return
	}

	response.Body = append(response.Body, ev.Data...)
	if ev.EndStream {
		l.c.complete(response)
	}
}

func (l listener) OnReset(streamID uint32, code http2.ErrCode) {
	delete(l.c.inbound, streamID)
	l.c.registry.Fail(streamID, fmt.Errorf("%w: %s", ErrStreamReset, code))
}

func (l listener) OnError(err error) {
	l.c.registry.FailAll(err)
}

func headersOf(ev wire.HeadersEvent) *kv.Storage {
	return headers.FromFields(ev.Fields)
}
