// Package headers converts HPACK header lists into ordered header storages.
package headers

import (
	"github.com/indigo-web/h2pair/kv"
	"golang.org/x/net/http2/hpack"
)

// Well-known pseudo-headers.
const (
	Method    = ":method"
	Path      = ":path"
	Scheme    = ":scheme"
	Authority = ":authority"
	Status    = ":status"
)

const (
	ContentType    = "content-type"
	ContentLength  = "content-length"
	AcceptEncoding = "accept-encoding"
	RequestID      = "x-request-id"
)

// FromFields collects every field as given, pseudo-headers included. Repeating names
// override previous values.
func FromFields(fields []hpack.HeaderField) *kv.Storage {
	storage := kv.NewPrealloc(len(fields))
	for _, field := range fields {
		storage.Set(field.Name, field.Value)
	}

	return storage
}

// Pseudo looks up a pseudo-header. Only the leading pseudo-header block is considered,
// as regular fields must never precede them.
func Pseudo(fields []hpack.HeaderField, name string) (value string, found bool) {
	for _, field := range fields {
		if !field.IsPseudo() {
			break
		}

		if field.Name == name {
			return field.Value, true
		}
	}

	return "", false
}

// generated are set by the encoders themselves, connection-specific ones are
// forbidden in HTTP/2 altogether
var generated = map[string]struct{}{
	"connection":        {},
	"keep-alive":        {},
	"proxy-connection":  {},
	"transfer-encoding": {},
	"upgrade":           {},
	ContentLength:       {},
}

// Skipped reports whether a user-provided header (already lowercased) must not be
// put on the wire as a regular field.
func Skipped(name string) bool {
	if len(name) == 0 || name[0] == ':' {
		return true
	}

	_, found := generated[name]
	return found
}
