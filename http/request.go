package http

import (
	"net"
	"slices"

	"github.com/google/uuid"
	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/kv"
	json "github.com/json-iterator/go"
)

// Request is a fully accumulated inbound request. It's handed to a handler exactly once
// and must not be retained after the handler returned, as the body may be backed by the
// stream's buffer.
type Request struct {
	// StreamID is the HTTP/2 stream the request arrived on and the response is sent back to.
	StreamID uint32
	// ID uniquely identifies the request in logs and is echoed back as x-request-id.
	ID     uuid.UUID
	Method method.Method
	// Path is the route, the query string is already split off into Params.
	Path string
	// Headers contain every received field, pseudo-headers included.
	Headers *kv.Storage
	Params  *kv.Storage
	Body    string
	Remote  net.Addr
}

// NewRequest returns a request with initialized storages and a fresh ID.
func NewRequest(streamID uint32, m method.Method, path string) *Request {
	return &Request{
		StreamID: streamID,
		ID:       uuid.New(),
		Method:   m,
		Path:     path,
		Headers:  kv.New(),
		Params:   kv.New(),
	}
}

// Respond returns a new response builder.
func (r *Request) Respond() *Response {
	return NewResponse()
}

// Dump renders the method, the path, headers and parameters as a JSON object. Pairs keep
// their order.
func (r *Request) Dump() ([]byte, error) {
	stream := json.ConfigDefault.BorrowStream(nil)
	defer json.ConfigDefault.ReturnStream(stream)

	headers, err := r.Headers.MarshalJSON()
	if err != nil {
		return nil, err
	}

	params, err := r.Params.MarshalJSON()
	if err != nil {
		return nil, err
	}

	stream.WriteObjectStart()
	stream.WriteObjectField("ID")
	stream.WriteString(r.ID.String())
	stream.WriteMore()
	stream.WriteObjectField("METHOD")
	stream.WriteString(r.Method.String())
	stream.WriteMore()
	stream.WriteObjectField("PATH")
	stream.WriteString(r.Path)
	stream.WriteMore()
	stream.WriteObjectField("HEADERS")
	_, _ = stream.Write(headers)
	stream.WriteMore()
	stream.WriteObjectField("PARAMETERS")
	_, _ = stream.Write(params)
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, stream.Error
	}

	return slices.Clone(stream.Buffer()), nil
}
