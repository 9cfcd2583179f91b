package client

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/internal/future"
)

var (
	ErrTimeout          = future.ErrTimeout
	ErrTransport        = errors.New("transport failure")
	ErrStreamRegistered = errors.New("stream is already registered")
)

// Phase tells which of the tokens of a pending stream failed.
type Phase uint8

const (
	PhaseWrite Phase = iota + 1
	PhaseResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseWrite:
		return "write"
	case PhaseResponse:
		return "response"
	default:
		return "unknown phase"
	}
}

// TimeoutError is returned when a token of the stream wasn't resolved in time.
type TimeoutError struct {
	StreamID uint32
	Phase    Phase
}

func (t *TimeoutError) Error() string {
	return fmt.Sprintf("stream %d: %s timed out", t.StreamID, t.Phase)
}

func (t *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// TransportError is returned when a token of the stream was failed. It matches both
// ErrTransport and the cause.
type TransportError struct {
	StreamID uint32
	Phase    Phase
	Err      error
}

func (t *TransportError) Error() string {
	return fmt.Sprintf("stream %d: %s: %s", t.StreamID, t.Phase, t.Err)
}

func (t *TransportError) Unwrap() []error {
	return []error{ErrTransport, t.Err}
}

type entry struct {
	streamID uint32
	write    *future.Future
	response *future.Future
}

// Registry pairs every outstanding stream with its write and response tokens. Insertion
// and resolution may happen concurrently with draining.
type Registry struct {
	mu      sync.Mutex
	entries map[uint32]*entry
	order   []uint32
	logger  config.Logger
}

func NewRegistry(logger config.Logger) *Registry {
	return &Registry{
		entries: make(map[uint32]*entry),
		logger:  logger,
	}
}

// Register stores the tokens of the stream. An outstanding stream can't be registered
// again.
func (r *Registry) Register(streamID uint32, write, response *future.Future) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.entries[streamID]; found {
		return fmt.Errorf("stream %d: %w", streamID, ErrStreamRegistered)
	}

	r.entries[streamID] = &entry{
		streamID: streamID,
		write:    write,
		response: response,
	}
	r.order = append(r.order, streamID)

	return nil
}

// Resolve resolves the response token of the stream. Unknown streams are logged and
// false is returned.
func (r *Registry) Resolve(streamID uint32) bool {
	return r.ResolveWith(streamID, nil)
}

// ResolveWith calls deliver, if not nil, before resolving the response token, so
// the response is always handled by the time a waiter is woken up. Deliver isn't
// called for unknown streams.
func (r *Registry) ResolveWith(streamID uint32, deliver func()) bool {
	e, found := r.lookup(streamID)
	if !found {
		r.logger.Printf("unknown stream id %d, dropping the response", streamID)
		return false
	}

	if deliver != nil {
		deliver()
	}

	e.response.Resolve()
	return true
}

// Fail fails the response token of the stream, so waiters observe a transport failure
// instead of a timeout.
func (r *Registry) Fail(streamID uint32, err error) bool {
	e, found := r.lookup(streamID)
	if !found {
		r.logger.Printf("unknown stream id %d, dropping the failure: %s", streamID, err)
		return false
	}

	e.response.Fail(err)
	return true
}

// FailAll fails every pending stream, both tokens. Already resolved tokens are not
// affected.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		e.write.Fail(err)
		e.response.Fail(err)
	}
}

// Len returns the number of pending streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// AwaitAll waits for the pending streams in the order they were registered in: first
// the write token, then the response one, each bounded by the timeout. Successfully
// completed streams are removed. The first failure stops the iteration, leaving
// the rest of the streams pending.
func (r *Registry) AwaitAll(timeout time.Duration) error {
	for _, e := range r.snapshot() {
		if err := await(e.streamID, PhaseWrite, e.write, timeout); err != nil {
			return err
		}

		if err := await(e.streamID, PhaseResponse, e.response, timeout); err != nil {
			return err
		}

		r.remove(e.streamID)
	}

	return nil
}

func await(streamID uint32, phase Phase, token *future.Future, timeout time.Duration) error {
	switch err := token.Await(timeout); {
	case err == nil:
		return nil
	case errors.Is(err, future.ErrTimeout):
		return &TimeoutError{StreamID: streamID, Phase: phase}
	default:
		return &TransportError{StreamID: streamID, Phase: phase, Err: err}
	}
}

func (r *Registry) lookup(streamID uint32) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[streamID]
	return e, found
}

func (r *Registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.order))
	for _, streamID := range r.order {
		entries = append(entries, r.entries[streamID])
	}

	return entries
}

func (r *Registry) remove(streamID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.entries[streamID]; !found {
		return
	}

	delete(r.entries, streamID)
	if i := slices.Index(r.order, streamID); i != -1 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}
