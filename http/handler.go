package http

import "github.com/indigo-web/h2pair/http/status"

// Handler is the capability set a route serves. Every capability either produces
// a response or fails with an error, which is converted into one. Returning
// status.ErrMethodNotAllowed (or a nil response with no error) means the capability
// isn't supported by the handler.
type Handler interface {
	HandleGet(*Request) (*Response, error)
	HandlePost(*Request) (*Response, error)
	HandlePut(*Request) (*Response, error)
	HandleDelete(*Request) (*Response, error)
}

// Unsupported implements the whole capability set by refusing it. Embed it and override
// the capabilities the handler actually supports.
type Unsupported struct{}

func (Unsupported) HandleGet(*Request) (*Response, error) {
	return nil, status.ErrMethodNotAllowed
}

func (Unsupported) HandlePost(*Request) (*Response, error) {
	return nil, status.ErrMethodNotAllowed
}

func (Unsupported) HandlePut(*Request) (*Response, error) {
	return nil, status.ErrMethodNotAllowed
}

func (Unsupported) HandleDelete(*Request) (*Response, error) {
	return nil, status.ErrMethodNotAllowed
}

// HandlerFunc is the signature of a single capability.
type HandlerFunc func(*Request) (*Response, error)

// Funcs builds a handler out of plain functions. Nil capabilities are unsupported.
type Funcs struct {
	Get, Post, Put, Delete HandlerFunc
}

func (f Funcs) HandleGet(r *Request) (*Response, error) {
	return f.Get.call(r)
}

func (f Funcs) HandlePost(r *Request) (*Response, error) {
	return f.Post.call(r)
}

func (f Funcs) HandlePut(r *Request) (*Response, error) {
	return f.Put.call(r)
}

func (f Funcs) HandleDelete(r *Request) (*Response, error) {
	return f.Delete.call(r)
}

func (h HandlerFunc) call(r *Request) (*Response, error) {
	if h == nil {
		return nil, status.ErrMethodNotAllowed
	}

	return h(r)
}
