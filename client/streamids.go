package client

// firstStreamID is the first client-initiated stream. Stream 1 is reserved for
// a stream initiated by an HTTP/1.1 upgrade.
const firstStreamID = 3

// StreamIDs allocates client-initiated stream identifiers: 3, 5, 7 and so on. It isn't
// safe for concurrent use, the client serializes calls under its send lock.
type StreamIDs struct {
	next uint32
}

func (s *StreamIDs) Next() uint32 {
	if s.next == 0 {
		s.next = firstStreamID
	}

	id := s.next
	s.next += 2

	return id
}
