package wire

import (
	"sync"

	"golang.org/x/net/http2"
)

const (
	defaultWindow = 65535
	maxWindow     = 1<<31 - 1
)

// windows tracks the send flow-control windows of the connection and of every open stream.
// Writers block in take until the peer grants enough space.
type windows struct {
	mu      sync.Mutex
	cond    *sync.Cond
	conn    int64
	initial int64
	streams map[uint32]int64
	closed  bool
}

func newWindows() *windows {
	w := &windows{
		conn:    defaultWindow,
		initial: defaultWindow,
		streams: make(map[uint32]int64),
	}
	w.cond = sync.NewCond(&w.mu)

	return w
}

func (w *windows) open(streamID uint32) {
	w.mu.Lock()
	w.streams[streamID] = w.initial
	w.mu.Unlock()
}

// forget drops the stream. Writers blocked on it are woken up with errStreamClosed.
func (w *windows) forget(streamID uint32) {
	w.mu.Lock()
	delete(w.streams, streamID)
	w.mu.Unlock()
	w.cond.Broadcast()
}

// add applies a WINDOW_UPDATE. Updates of unknown streams are ignored, as they may
// legitimately arrive for streams we are done sending to.
func (w *windows) add(streamID uint32, increment uint32) error {
	w.mu.Lock()
	defer w.cond.Broadcast()
	defer w.mu.Unlock()

	if streamID == 0 {
		w.conn += int64(increment)
		if w.conn > maxWindow {
			return http2.ConnectionError(http2.ErrCodeFlowControl)
		}

		return nil
	}

	window, found := w.streams[streamID]
	if !found {
		return nil
	}

	window += int64(increment)
	if window > maxWindow {
		return http2.StreamError{
			StreamID: streamID,
			Code:     http2.ErrCodeFlowControl,
		}
	}

	w.streams[streamID] = window
	return nil
}

// setInitial applies the peer's SETTINGS_INITIAL_WINDOW_SIZE to every open stream. The
// connection window isn't affected by it.
func (w *windows) setInitial(size uint32) {
	w.mu.Lock()
	delta := int64(size) - w.initial
	w.initial = int64(size)
	for streamID := range w.streams {
		w.streams[streamID] += delta
	}
	w.mu.Unlock()
	w.cond.Broadcast()
}

// take blocks until some window space for the stream is available and consumes at most n
// bytes of it. The granted amount is returned.
func (w *windows) take(streamID uint32, n int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		if w.closed {
			return 0, ErrClosed
		}

		window, found := w.streams[streamID]
		if !found {
			return 0, errStreamClosed
		}

		if window > 0 && w.conn > 0 {
			granted := min(int64(n), window, w.conn)
			w.streams[streamID] -= granted
			w.conn -= granted

			return int(granted), nil
		}

		w.cond.Wait()
	}
}

func (w *windows) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}
