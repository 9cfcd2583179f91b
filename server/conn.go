package server

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/headers"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/internal/future"
	"github.com/indigo-web/h2pair/internal/wire"
	"github.com/indigo-web/h2pair/router"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// connection serves the streams of a single HTTP/2 connection.
type connection struct {
	cfg    *config.Config
	router *router.Router
	acc    *Accumulator
	wire   *wire.Conn
}

func newConnection(cfg *config.Config, r *router.Router, remote net.Addr) *connection {
	return &connection{
		cfg:    cfg,
		router: r,
		acc:    NewAccumulator(cfg, remote),
	}
}

func (c *connection) OnSettings() {}

func (c *connection) OnHeaders(ev wire.HeadersEvent) {
	request, err := c.acc.OnHeaders(ev)
	c.handle(ev.StreamID, request, err)
}

func (c *connection) OnData(ev wire.DataEvent) {
	request, err := c.acc.OnData(ev)
	c.handle(ev.StreamID, request, err)
}

func (c *connection) OnReset(streamID uint32, code http2.ErrCode) {
	c.acc.Forget(streamID)
	if code != http2.ErrCodeNo && code != http2.ErrCodeCancel {
		c.cfg.Logger.Printf("stream %d reset by the peer: %s", streamID, code)
	}
}

func (c *connection) OnError(err error) {
	if !isBenign(err) {
		c.cfg.Logger.Printf("connection %s: %s", c.remote(), err)
	}
}

func (c *connection) handle(streamID uint32, request *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTooManyStreams):
		c.cfg.Logger.Printf("%s: refusing stream %d: %s", c.remote(), streamID, err)
		_ = c.wire.Reset(streamID, http2.ErrCodeRefusedStream)
	case errors.Is(err, ErrUnknownStream):
		c.cfg.Logger.Printf("%s: dropping frame: %s", c.remote(), err)
	case err != nil:
		c.respond(streamID, "", http.NewResponse().Error(err))
	case request != nil:
		c.respond(streamID, request.ID.String(), c.router.Dispatch(request))
	}
}

func (c *connection) respond(streamID uint32, requestID string, response *http.Response) {
	fields, body := encodeResponse(response.Reveal(), requestID)
	if err := c.wire.WriteStream(streamID, fields, body, future.New()); err != nil && !isBenign(err) {
		c.cfg.Logger.Printf("%s: stream %d: cannot write the response: %s", c.remote(), streamID, err)
	}
}

func (c *connection) remote() string {
	if c.wire == nil {
		return "<handshake>"
	}

	return c.wire.RemoteAddr().String()
}

// encodeResponse renders :status, content-type, content-length, x-request-id (when known)
// and the custom headers in their order.
func encodeResponse(fields *http.Fields, requestID string) ([]hpack.HeaderField, []byte) {
	list := make([]hpack.HeaderField, 0, 4+fields.Headers.Len())
	list = append(list,
		hpack.HeaderField{Name: headers.Status, Value: status.StringCode(fields.Code)},
		hpack.HeaderField{Name: headers.ContentType, Value: fields.ContentType},
		hpack.HeaderField{Name: headers.ContentLength, Value: strconv.Itoa(len(fields.Payload))},
	)

	if len(requestID) > 0 {
		list = append(list, hpack.HeaderField{Name: headers.RequestID, Value: requestID})
	}

	for key, value := range fields.Headers.Pairs() {
		name := strings.ToLower(key)
		if headers.Skipped(name) || name == headers.ContentType || name == headers.RequestID {
			continue
		}

		list = append(list, hpack.HeaderField{Name: name, Value: value})
	}

	return list, fields.Payload
}

func isBenign(err error) bool {
	return err == nil ||
		errors.Is(err, wire.ErrClosed) ||
		errors.Is(err, wire.ErrGoAway) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
