package kv

import (
	"iter"
	"slices"

	json "github.com/json-iterator/go"
)

type Pair struct {
	Key, Value string
}

// Storage is an ordered associative structure for (string, string) pairs. Keys are unique
// and case-sensitive: setting an existing key replaces its value but keeps the position of
// the first insertion, so iteration always follows insertion order. Lookups are linear,
// which proves to be more efficient on relatively low amount of entries, which is usually
// the case for headers and query parameters.
type Storage struct {
	pairs []Pair
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromMap returns a new instance with already inserted values from given map. As maps
// are unordered, keys are inserted in sorted order, so the result is always the same for
// the same map.
func NewFromMap(m map[string]string) *Storage {
	return NewPrealloc(len(m)).SetMap(m)
}

// Set stores the value by the key. If the key already exists, its value is overridden
// in place.
func (s *Storage) Set(key, value string) *Storage {
	if i := s.index(key); i != -1 {
		s.pairs[i].Value = value
		return s
	}

	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})

	return s
}

// SetMap merges the map into the storage. Keys are merged in sorted order.
func (s *Storage) SetMap(m map[string]string) *Storage {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	for _, key := range keys {
		s.Set(key, m[key])
	}

	return s
}

// Merge sets every pair of other, preserving its order.
func (s *Storage) Merge(other *Storage) *Storage {
	if other == nil {
		return s
	}

	for _, pair := range other.pairs {
		s.Set(pair.Key, pair.Value)
	}

	return s
}

// Value returns the value corresponding to the key. Otherwise, empty string is returned
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the value corresponding to the key or custom value, defined
// via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool, indicating whether the value was found. If it wasn't, it'll
// be an empty string.
func (s *Storage) Get(key string) (value string, found bool) {
	if i := s.index(key); i != -1 {
		return s.pairs[i].Value, true
	}

	return "", false
}

// Has indicates, whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	return s.index(key) != -1
}

// Delete removes the entry by the key, if presented.
func (s *Storage) Delete(key string) *Storage {
	if i := s.index(key); i != -1 {
		s.pairs = slices.Delete(s.pairs, i, i+1)
	}

	return s
}

// Keys returns an iterator over the keys in insertion order.
func (s *Storage) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, pair := range s.pairs {
			if !yield(pair.Key) {
				break
			}
		}
	}
}

// Pairs returns an iterator over the pairs in insertion order.
func (s *Storage) Pairs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range s.pairs {
			if !yield(pair.Key, pair.Value) {
				break
			}
		}
	}
}

// Len returns a number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Clone creates a deep copy, which may be used later or stored somewhere safely.
func (s *Storage) Clone() *Storage {
	return &Storage{
		pairs: slices.Clone(s.pairs),
	}
}

// Map returns the content as a plain map. Order is lost.
func (s *Storage) Map() map[string]string {
	m := make(map[string]string, len(s.pairs))
	for _, pair := range s.pairs {
		m[pair.Key] = pair.Value
	}

	return m
}

// Expose exposes the underlying pairs slice.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Clear all the entries. However, all the allocated space won't be freed.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

// MarshalJSON renders the storage as a JSON object with keys in insertion order.
func (s *Storage) MarshalJSON() ([]byte, error) {
	stream := json.ConfigDefault.BorrowStream(nil)
	defer json.ConfigDefault.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, pair := range s.pairs {
		if i > 0 {
			stream.WriteMore()
		}

		stream.WriteObjectField(pair.Key)
		stream.WriteString(pair.Value)
	}
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, stream.Error
	}

	return slices.Clone(stream.Buffer()), nil
}

func (s *Storage) index(key string) int {
	for i, pair := range s.pairs {
		if pair.Key == key {
			return i
		}
	}

	return -1
}
