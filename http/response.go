package http

import (
	"github.com/indigo-web/h2pair/http/mime"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

const (
	// most responses carry no custom headers at all, so don't go big
	preallocRespHeaders = 4
	DefaultContentType  = mime.Plain
)

// Fields are the values filled by the builder.
type Fields struct {
	Code        status.Code
	ContentType mime.MIME
	Headers     *kv.Storage
	Payload     []byte
}

type Response struct {
	fields Fields
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK
// and text/plain content-type.
func NewResponse() *Response {
	return &Response{
		fields: Fields{
			Code:        status.OK,
			ContentType: DefaultContentType,
			Headers:     kv.NewPrealloc(preallocRespHeaders),
		},
	}
}

// Code sets a Response code.
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// ContentType sets a custom Content-Type header value.
func (r *Response) ContentType(value mime.MIME) *Response {
	r.fields.ContentType = value
	return r
}

// Header sets the header value. Setting the same key again overrides the previous value.
// Content-Type is redirected to ContentType.
func (r *Response) Header(key, value string) *Response {
	if key == "content-type" || key == "Content-Type" {
		return r.ContentType(value)
	}

	r.fields.Headers.Set(key, value)
	return r
}

// Headers merges passed headers into the Response. Keys are merged in sorted order.
func (r *Response) Headers(headers map[string]string) *Response {
	for key, value := range kv.NewFromMap(headers).Pairs() {
		r.Header(key, value)
	}

	return r
}

// String sets the response's body to the passed string
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Payload = body
	return r
}

// Write implements io.Writer interface. It always returns n=len(b) and err=nil
func (r *Response) Write(b []byte) (n int, err error) {
	r.fields.Payload = append(r.fields.Payload, b...)
	return len(b), nil
}

// TryJSON serializes the model into the body and returns an error, if any occurred
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Payload = nil
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType(mime.JSON), err
}

// JSON does the same as TryJSON does, except returned error is being implicitly wrapped
// by Error
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error returns a response builder with an error set. If passed err is nil, nothing will happen.
// Instances of status.HTTPError set their code and message, any other error results in
// a 500 Internal Server Error with the error's text as the body.
func (r *Response) Error(err error) *Response {
	if err == nil {
		return r
	}

	return r.
		Code(status.CodeOf(err)).
		ContentType(mime.Plain).
		String(err.Error())
}

// Reveal returns a struct with values, filled by builder. Used mostly in internal purposes
func (r *Response) Reveal() *Fields {
	return &r.fields
}

// Respond is a predicate to request.Respond(). May be used as a dummy handler
func Respond(request *Request) *Response {
	return request.Respond()
}

// String is a predicate to request.Respond().String(...)
func String(request *Request, str string) *Response {
	return request.Respond().String(str)
}

// Code is a predicate to request.Respond().Code(...)
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}
