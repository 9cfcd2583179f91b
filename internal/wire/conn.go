// Package wire is the HTTP/2 frame endpoint shared by the client and the server. It does
// the connection preface, settings exchange and flow control, and turns inbound frames
// into stream events. Outbound streams are written by a single writer goroutine, so
// frames of different streams follow the order the streams were queued in.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/internal/future"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

var (
	ErrClosed      = errors.New("connection closed")
	ErrBadPreface  = errors.New("bad client preface")
	ErrGoAway      = errors.New("received GOAWAY")
	errStreamReset = errors.New("stream reset")
	// errStreamClosed is returned by flow control when the stream was reset while its
	// body was being written.
	errStreamClosed = fmt.Errorf("%w while writing", errStreamReset)
)

const minFrameSize = 16384

// HeadersEvent is a complete header block, CONTINUATION frames already joined.
type HeadersEvent struct {
	StreamID  uint32
	Fields    []hpack.HeaderField
	EndStream bool
}

// DataEvent carries the payload of a single DATA frame. Data is valid only until the
// listener returns.
type DataEvent struct {
	StreamID  uint32
	Data      []byte
	Padding   int
	EndStream bool
}

// Listener receives the events of the connection. All the methods except OnError are
// called from the read loop goroutine only; OnError is called once, from whichever
// goroutine failed the connection.
type Listener interface {
	OnSettings()
	OnHeaders(HeadersEvent)
	OnData(DataEvent)
	OnReset(streamID uint32, code http2.ErrCode)
	OnError(err error)
}

type Conn struct {
	conn     net.Conn
	cfg      *config.Config
	listener Listener
	isClient bool

	wmu       sync.Mutex // guards framer writes, encoder and headerBuf
	framer    *http2.Framer
	encoder   *hpack.Encoder
	headerBuf bytes.Buffer

	windows      *windows
	queue        *queue
	peerMaxFrame atomic.Uint32
	lastPeer     atomic.Uint32

	failOnce sync.Once
	err      error
	done     chan struct{}
}

// Server validates the client preface and sends the initial settings. The read loop
// must be started by calling Serve.
func Server(conn net.Conn, cfg *config.Config, listener Listener) (*Conn, error) {
	reader := bufio.NewReader(conn)
	if timeout := cfg.NET.ReadTimeout; timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}

	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(reader, preface); err != nil {
		return nil, fmt.Errorf("read preface: %w", err)
	}

	if string(preface) != http2.ClientPreface {
		return nil, ErrBadPreface
	}

	c := newConn(conn, reader, cfg, listener, false)
	if err := c.handshake(); err != nil {
		c.fail(err)
		return nil, err
	}

	return c, nil
}

// Client sends the connection preface followed by the initial settings. The read loop
// must be started by calling Serve.
func Client(conn net.Conn, cfg *config.Config, listener Listener) (*Conn, error) {
	c := newConn(conn, bufio.NewReader(conn), cfg, listener, true)
	if err := c.handshake(); err != nil {
		c.fail(err)
		return nil, err
	}

	return c, nil
}

func newConn(conn net.Conn, reader io.Reader, cfg *config.Config, listener Listener, isClient bool) *Conn {
	c := &Conn{
		conn:     conn,
		cfg:      cfg,
		listener: listener,
		isClient: isClient,
		windows:  newWindows(),
		queue:    newQueue(),
		done:     make(chan struct{}),
	}

	c.framer = http2.NewFramer(conn, reader)
	c.framer.SetMaxReadFrameSize(cfg.HTTP2.MaxFrameSize)
	c.framer.MaxHeaderListSize = cfg.HTTP2.MaxHeaderListSize
	c.framer.ReadMetaHeaders = hpack.NewDecoder(cfg.HTTP2.HeaderTableSize, nil)
	c.encoder = hpack.NewEncoder(&c.headerBuf)
	c.peerMaxFrame.Store(minFrameSize)

	go c.writeLoop()

	return c
}

func (c *Conn) handshake() error {
	settings := []http2.Setting{
		{ID: http2.SettingMaxFrameSize, Val: c.cfg.HTTP2.MaxFrameSize},
		{ID: http2.SettingInitialWindowSize, Val: c.cfg.HTTP2.InitialWindowSize},
		{ID: http2.SettingMaxHeaderListSize, Val: c.cfg.HTTP2.MaxHeaderListSize},
		{ID: http2.SettingHeaderTableSize, Val: c.cfg.HTTP2.HeaderTableSize},
	}

	if c.isClient {
		settings = append([]http2.Setting{{ID: http2.SettingEnablePush, Val: 0}}, settings...)
	}

	return c.write(func(fr *http2.Framer) error {
		if c.isClient {
			if _, err := io.WriteString(c.conn, http2.ClientPreface); err != nil {
				return fmt.Errorf("write preface: %w", err)
			}
		}

		if err := fr.WriteSettings(settings...); err != nil {
			return err
		}

		// SETTINGS_INITIAL_WINDOW_SIZE doesn't affect the connection window
		if window := c.cfg.HTTP2.InitialWindowSize; window > defaultWindow {
			return fr.WriteWindowUpdate(0, window-defaultWindow)
		}

		return nil
	})
}

// Serve runs the read loop until the connection fails or is closed, returning the cause.
func (c *Conn) Serve() error {
	for {
		if timeout := c.cfg.NET.ReadTimeout; timeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		}

		frame, err := c.framer.ReadFrame()
		if err == nil {
			err = c.process(frame)
		}

		if err != nil {
			var streamErr http2.StreamError
			if errors.As(err, &streamErr) {
				c.cfg.Logger.Printf("stream %d: %s", streamErr.StreamID, streamErr)
				_ = c.Reset(streamErr.StreamID, streamErr.Code)
				c.listener.OnReset(streamErr.StreamID, streamErr.Code)
				continue
			}

			c.fail(c.closeCause(err))
			return c.Err()
		}
	}
}

func (c *Conn) closeCause(err error) error {
	select {
	case <-c.done:
		// the socket was closed by us, so the read error is just a consequence
		return c.err
	default:
	}

	var connErr http2.ConnectionError
	if errors.As(err, &connErr) {
		c.sendGoAway(http2.ErrCode(connErr))
	}

	return err
}

func (c *Conn) process(frame http2.Frame) error {
	streamID := frame.Header().StreamID

	switch f := frame.(type) {
	case *http2.SettingsFrame:
		if f.IsAck() {
			return nil
		}

		if err := f.ForeachSetting(c.applySetting); err != nil {
			return err
		}

		if err := c.write((*http2.Framer).WriteSettingsAck); err != nil {
			return err
		}

		c.listener.OnSettings()
	case *http2.PingFrame:
		if f.IsAck() {
			return nil
		}

		return c.write(func(fr *http2.Framer) error {
			return fr.WritePing(true, f.Data)
		})
	case *http2.WindowUpdateFrame:
		return c.windows.add(streamID, f.Increment)
	case *http2.MetaHeadersFrame:
		if !c.isClient && streamID > c.lastPeer.Load() {
			c.lastPeer.Store(streamID)
		}

		c.listener.OnHeaders(HeadersEvent{
			StreamID:  streamID,
			Fields:    f.Fields,
			EndStream: f.StreamEnded(),
		})
	case *http2.DataFrame:
		if err := c.replenish(streamID, f.Header().Length, f.StreamEnded()); err != nil {
			return err
		}

		c.listener.OnData(DataEvent{
			StreamID:  streamID,
			Data:      f.Data(),
			Padding:   int(f.Header().Length) - len(f.Data()),
			EndStream: f.StreamEnded(),
		})
	case *http2.RSTStreamFrame:
		c.windows.forget(streamID)
		c.listener.OnReset(streamID, f.ErrCode)
	case *http2.GoAwayFrame:
		return fmt.Errorf("%w: %s (last stream %d)", ErrGoAway, f.ErrCode, f.LastStreamID)
	case *http2.PushPromiseFrame:
		// push is disabled in our settings
		return http2.ConnectionError(http2.ErrCodeProtocol)
	}

	return nil
}

func (c *Conn) applySetting(setting http2.Setting) error {
	if err := setting.Valid(); err != nil {
		return err
	}

	switch setting.ID {
	case http2.SettingInitialWindowSize:
		c.windows.setInitial(setting.Val)
	case http2.SettingMaxFrameSize:
		c.peerMaxFrame.Store(setting.Val)
	case http2.SettingHeaderTableSize:
		c.wmu.Lock()
		c.encoder.SetMaxDynamicTableSizeLimit(setting.Val)
		c.wmu.Unlock()
	}

	return nil
}

// replenish gives the consumed window back to the peer right away, as the data is
// buffered by the listener anyway.
func (c *Conn) replenish(streamID, length uint32, ended bool) error {
	if length == 0 {
		return nil
	}

	return c.write(func(fr *http2.Framer) error {
		if err := fr.WriteWindowUpdate(0, length); err != nil {
			return err
		}

		if ended {
			return nil
		}

		return fr.WriteWindowUpdate(streamID, length)
	})
}

// WriteStream queues the header block and the body to be sent on the stream. The token
// is resolved as soon as the last frame is written, or failed with the write error. If
// the connection is already closed, the token is failed immediately.
func (c *Conn) WriteStream(streamID uint32, fields []hpack.HeaderField, body []byte, token *future.Future) error {
	c.windows.open(streamID)

	ok := c.queue.push(&outbound{
		streamID: streamID,
		fields:   fields,
		body:     body,
		token:    token,
	})
	if !ok {
		c.windows.forget(streamID)
		token.Fail(ErrClosed)
		return ErrClosed
	}

	return nil
}

func (c *Conn) writeLoop() {
	for {
		item, ok := c.queue.pop()
		if !ok {
			return
		}

		switch err := c.writeStream(item); {
		case err == nil:
			item.token.Resolve()
		case errors.Is(err, errStreamReset):
			item.token.Fail(fmt.Errorf("stream %d: %w", item.streamID, err))
		default:
			if c.IsDone() {
				err = c.err
			}

			item.token.Fail(err)
			c.fail(err)
			return
		}
	}
}

func (c *Conn) writeStream(item *outbound) error {
	defer c.windows.forget(item.streamID)

	err := c.write(func(fr *http2.Framer) error {
		return c.writeHeaders(fr, item.streamID, item.fields, len(item.body) == 0)
	})
	if err != nil {
		return err
	}

	body := item.body
	for len(body) > 0 {
		n, err := c.windows.take(item.streamID, min(len(body), int(c.peerMaxFrame.Load())))
		if err != nil {
			return err
		}

		chunk := body[:n]
		body = body[n:]
		err = c.write(func(fr *http2.Framer) error {
			return fr.WriteData(item.streamID, len(body) == 0, chunk)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// writeHeaders must be called while holding wmu, so the encoder state follows the order
// header blocks are actually sent in and no other frame goes between the HEADERS and its
// CONTINUATION frames.
func (c *Conn) writeHeaders(fr *http2.Framer, streamID uint32, fields []hpack.HeaderField, endStream bool) error {
	c.headerBuf.Reset()
	for _, field := range fields {
		if err := c.encoder.WriteField(field); err != nil {
			return err
		}
	}

	block := c.headerBuf.Bytes()
	maxFrame := int(c.peerMaxFrame.Load())
	first := block[:min(len(block), maxFrame)]
	rest := block[len(first):]

	err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(rest) == 0,
	})
	if err != nil {
		return err
	}

	for len(rest) > 0 {
		chunk := rest[:min(len(rest), maxFrame)]
		rest = rest[len(chunk):]
		if err = fr.WriteContinuation(streamID, len(rest) == 0, chunk); err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) write(fn func(*http2.Framer) error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if timeout := c.cfg.NET.WriteTimeout; timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	return fn(c.framer)
}

// Reset sends RST_STREAM and stops writing the stream, if it's being written.
func (c *Conn) Reset(streamID uint32, code http2.ErrCode) error {
	c.windows.forget(streamID)

	return c.write(func(fr *http2.Framer) error {
		return fr.WriteRSTStream(streamID, code)
	})
}

func (c *Conn) sendGoAway(code http2.ErrCode) {
	_ = c.write(func(fr *http2.Framer) error {
		return fr.WriteGoAway(c.lastPeer.Load(), code, nil)
	})
}

// Close sends GOAWAY and closes the connection. Streams not written yet are failed
// with ErrClosed.
func (c *Conn) Close() error {
	if c.IsDone() {
		return nil
	}

	c.sendGoAway(http2.ErrCodeNo)
	c.fail(ErrClosed)

	return nil
}

func (c *Conn) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		c.windows.close()
		for _, item := range c.queue.close() {
			item.token.Fail(err)
		}

		close(c.done)
		_ = c.conn.Close()
		c.listener.OnError(err)
	})
}

// Done returns a channel, which is closed as soon as the connection is terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the reason the connection was terminated with, or nil if it's still alive.
func (c *Conn) Err() error {
	if !c.IsDone() {
		return nil
	}

	return c.err
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
