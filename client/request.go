package client

import (
	"strconv"
	"strings"

	"github.com/indigo-web/h2pair/http/headers"
	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/http/query"
	"github.com/indigo-web/h2pair/kv"
	"golang.org/x/net/http2/hpack"
)

const defaultAcceptEncoding = "gzip, deflate"

// Builder stages a Request. The body policy is applied by Build, so the order of calls
// doesn't matter.
type Builder struct {
	method  method.Method
	path    string
	headers *kv.Storage
	params  *kv.Storage
	body    string
	hasBody bool
}

func NewRequest() *Builder {
	return &Builder{
		method:  method.GET,
		path:    "/",
		headers: kv.New(),
		params:  kv.New(),
	}
}

func (b *Builder) Method(m method.Method) *Builder {
	b.method = m
	return b
}

// Path sets the request path, without the query.
func (b *Builder) Path(path string) *Builder {
	b.path = path
	return b
}

// Header sets the header. Setting the same key again overrides the value, keeping its
// original position.
func (b *Builder) Header(key, value string) *Builder {
	b.headers.Set(key, value)
	return b
}

// Headers merges the map in sorted key order.
func (b *Builder) Headers(headers map[string]string) *Builder {
	b.headers.SetMap(headers)
	return b
}

func (b *Builder) Query(key, value string) *Builder {
	b.params.Set(key, value)
	return b
}

// Queries merges the map in sorted key order.
func (b *Builder) Queries(params map[string]string) *Builder {
	b.params.SetMap(params)
	return b
}

// Body sets the request body. It's recorded only for methods carrying a body, that is
// POST and PUT, and silently discarded otherwise.
func (b *Builder) Body(body string) *Builder {
	b.body = body
	b.hasBody = true
	return b
}

func (b *Builder) Build() Request {
	request := Request{
		method:  b.method,
		path:    b.path,
		headers: b.headers.Clone(),
		params:  b.params.Clone(),
	}

	if b.hasBody && b.method.HasBody() {
		request.body = b.body
		request.hasBody = true
	}

	return request
}

// Request is an immutable outbound request. Accessors return copies.
type Request struct {
	method  method.Method
	path    string
	headers *kv.Storage
	params  *kv.Storage
	body    string
	hasBody bool
}

func (r Request) Method() method.Method {
	return r.method
}

func (r Request) Path() string {
	return r.path
}

func (r Request) Headers() *kv.Storage {
	return r.headers.Clone()
}

func (r Request) Params() *kv.Storage {
	return r.params.Clone()
}

// Body returns the body and whether it's set at all.
func (r Request) Body() (string, bool) {
	return r.body, r.hasBody
}

// Encode returns the header list and the body as they go on the wire. Pseudo-headers go
// first, followed by accept-encoding, content-length (for requests with body) and
// the caller's headers in their order. Names are lower-cased, as HTTP/2 requires; a
// caller's accept-encoding replaces the default one.
func (r Request) Encode(authority, scheme string) ([]hpack.HeaderField, []byte) {
	fields := make([]hpack.HeaderField, 0, 6+r.headers.Len())
	fields = append(fields,
		hpack.HeaderField{Name: headers.Method, Value: r.method.String()},
		hpack.HeaderField{Name: headers.Scheme, Value: scheme},
		hpack.HeaderField{Name: headers.Authority, Value: authority},
		hpack.HeaderField{Name: headers.Path, Value: query.Encode(r.path, r.params)},
	)

	acceptEncoding := defaultAcceptEncoding
	custom := make([]hpack.HeaderField, 0, r.headers.Len())
	for key, value := range r.headers.Pairs() {
		name := strings.ToLower(key)
		if headers.Skipped(name) {
			continue
		}

		if name == headers.AcceptEncoding {
			acceptEncoding = value
			continue
		}

		custom = append(custom, hpack.HeaderField{Name: name, Value: value})
	}

	fields = append(fields, hpack.HeaderField{Name: headers.AcceptEncoding, Value: acceptEncoding})

	var body []byte
	if r.hasBody {
		body = []byte(r.body)
		fields = append(fields, hpack.HeaderField{
			Name:  headers.ContentLength,
			Value: strconv.Itoa(len(body)),
		})
	}

	return append(fields, custom...), body
}
