package wire

import (
	"sync"

	"github.com/indigo-web/h2pair/internal/future"
	"golang.org/x/net/http2/hpack"
)

// outbound is a whole stream to be written: the header block followed by the body.
type outbound struct {
	streamID uint32
	fields   []hpack.HeaderField
	body     []byte
	token    *future.Future
}

// queue is an unbounded FIFO of outbound streams, consumed by the single writer goroutine.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*outbound
	closed bool
}

func newQueue() *queue {
	q := new(queue)
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(item *outbound) (ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	q.cond.Signal()

	return true
}

// pop blocks until an item is available. False is returned as soon as the queue is closed.
func (q *queue) pop() (*outbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return nil, false
	}

	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	return item, true
}

// close rejects any further items and returns those that were never popped.
func (q *queue) close() (pending []*outbound) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	pending, q.items = q.items, nil
	q.cond.Broadcast()

	return pending
}
