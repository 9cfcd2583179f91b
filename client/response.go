package client

import (
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/kv"
	"github.com/indigo-web/utils/uf"
)

// Response is a response reassembled from the header block and the data frames of
// a stream.
type Response struct {
	StreamID uint32
	Code     status.Code
	// Headers contain every received field, :status included.
	Headers *kv.Storage
	Body    []byte
}

// String returns the body as a string without copying.
func (r *Response) String() string {
	return uf.B2S(r.Body)
}
