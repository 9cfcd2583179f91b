package buffer

// Buffer accumulates a byte sequence arriving in pieces, limited by the maximal size.
type Buffer struct {
	memory  []byte
	maxSize int
}

func New(initialSize, maxSize int) *Buffer {
	return &Buffer{
		memory:  make([]byte, 0, min(initialSize, maxSize)),
		maxSize: maxSize,
	}
}

// Append writes data, checking whether the new amount of elements (bytes) doesn't exceed the
// limit, otherwise discarding the data and returning false.
func (b *Buffer) Append(elements []byte) (ok bool) {
	if len(b.memory)+len(elements) > b.maxSize {
		return false
	}

	b.memory = append(b.memory, elements...)
	return true
}

func (b *Buffer) Len() int {
	return len(b.memory)
}

// Bytes returns the accumulated data. The slice stays valid until the next Append or Reset.
func (b *Buffer) Bytes() []byte {
	return b.memory
}

// Reset just resets the pointers, so old values may be overridden by new ones.
func (b *Buffer) Reset() {
	b.memory = b.memory[:0]
}
