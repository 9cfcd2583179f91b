package server

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/headers"
	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/http/query"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/internal/buffer"
	"github.com/indigo-web/h2pair/internal/wire"
	"github.com/indigo-web/utils/uf"
)

var (
	ErrTooManyStreams = errors.New("too many pending streams")
	ErrUnknownStream  = errors.New("unknown stream")
)

// State is the state of a single stream's request.
type State uint8

const (
	Idle State = iota
	HeadersReceived
	BodyAccumulating
	Dispatched
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HeadersReceived:
		return "headers received"
	case BodyAccumulating:
		return "accumulating body"
	case Dispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

type stream struct {
	state   State
	request *http.Request
	body    *buffer.Buffer
	// discard is set for streams already answered with an error, whose remaining data
	// must be swallowed
	discard bool
}

// Accumulator joins the header block and the data frames of every stream of a single
// connection into requests. It isn't safe for concurrent use: all the events are fed
// from the connection's read loop.
type Accumulator struct {
	cfg     *config.Config
	remote  net.Addr
	streams map[uint32]*stream
}

func NewAccumulator(cfg *config.Config, remote net.Addr) *Accumulator {
	return &Accumulator{
		cfg:     cfg,
		remote:  remote,
		streams: make(map[uint32]*stream, cfg.HTTP2.MaxPendingStreams),
	}
}

// OnHeaders starts a new request. If the header block ends the stream, the request
// is returned right away and must be dispatched, otherwise nil is returned and
// the request waits for its body.
func (a *Accumulator) OnHeaders(ev wire.HeadersEvent) (*http.Request, error) {
	if s, found := a.streams[ev.StreamID]; found {
		return a.onTrailers(ev, s)
	}

	if len(a.streams) >= a.cfg.HTTP2.MaxPendingStreams {
		return nil, fmt.Errorf("stream %d: %w", ev.StreamID, ErrTooManyStreams)
	}

	rawMethod, _ := headers.Pseudo(ev.Fields, headers.Method)
	path, found := headers.Pseudo(ev.Fields, headers.Path)
	if !found || len(path) == 0 {
		return nil, status.ErrBadRequest
	}

	route, rawQuery := query.Split(path)
	params, malformed := query.Parse(rawQuery)
	for _, segment := range malformed {
		a.cfg.Logger.Printf("stream %d: dropping malformed query parameter %q", ev.StreamID, segment)
	}

	request := http.NewRequest(ev.StreamID, method.Parse(rawMethod), route)
	request.Headers = headers.FromFields(ev.Fields)
	request.Params = params
	request.Remote = a.remote

	if ev.EndStream {
		return request, nil
	}

	a.streams[ev.StreamID] = &stream{
		state:   HeadersReceived,
		request: request,
	}

	return nil, nil
}

// onTrailers completes the request on a trailing header block. Trailers are merged
// into the request headers.
func (a *Accumulator) onTrailers(ev wire.HeadersEvent, s *stream) (*http.Request, error) {
	if !ev.EndStream {
		a.Forget(ev.StreamID)
		return nil, status.ErrBadRequest
	}

	if s.discard {
		a.Forget(ev.StreamID)
		return nil, nil
	}

	s.request.Headers.Merge(headers.FromFields(ev.Fields))
	return a.finish(ev.StreamID, s), nil
}

// OnData appends the payload to the stream's body. Bodies of methods that don't carry
// one are discarded. When the stream ends, the request is returned.
func (a *Accumulator) OnData(ev wire.DataEvent) (*http.Request, error) {
	s, found := a.streams[ev.StreamID]
	if !found {
		return nil, fmt.Errorf("stream %d: %w", ev.StreamID, ErrUnknownStream)
	}

	if s.discard {
		if ev.EndStream {
			a.Forget(ev.StreamID)
		}

		return nil, nil
	}

	s.state = BodyAccumulating

	if s.request.Method.HasBody() {
		if s.body == nil {
			s.body = buffer.New(a.cfg.Body.BufferPrealloc, a.cfg.Body.MaxSize)
		}

		if !s.body.Append(ev.Data) {
			s.discard, s.body = true, nil
			if ev.EndStream {
				a.Forget(ev.StreamID)
			}

			return nil, status.ErrBodyTooLarge
		}
	}

	if !ev.EndStream {
		return nil, nil
	}

	return a.finish(ev.StreamID, s), nil
}

func (a *Accumulator) finish(streamID uint32, s *stream) *http.Request {
	if s.body != nil {
		s.request.Body = strings.ToValidUTF8(uf.B2S(s.body.Bytes()), "\uFFFD")
	}

	s.state = Dispatched
	a.Forget(streamID)

	return s.request
}

// Forget drops the stream, e.g. when it was reset by the peer.
func (a *Accumulator) Forget(streamID uint32) {
	delete(a.streams, streamID)
}

// State returns the state of the stream. Unknown streams are Idle.
func (a *Accumulator) State(streamID uint32) State {
	if s, found := a.streams[streamID]; found {
		return s.state
	}

	return Idle
}

// Len returns the number of streams being accumulated.
func (a *Accumulator) Len() int {
	return len(a.streams)
}
