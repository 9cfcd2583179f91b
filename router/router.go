// Package router selects a handler by the exact request path and invokes the capability
// matching the request method.
package router

import (
	"fmt"
	"log"

	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/http/status"
)

type Logger interface {
	Printf(fmt string, v ...any)
}

type Router struct {
	routes   map[string]http.Handler
	fallback http.Handler
	loggers  []Logger
}

// New returns a router serving unmatched paths with the fallback. A nil fallback
// responds 404 to everything. Every dispatched request is logged into each of the
// loggers, log.Default() is used if none passed.
func New(fallback http.Handler, loggers ...Logger) *Router {
	if fallback == nil {
		fallback = notFound{}
	}

	if len(loggers) == 0 {
		loggers = append(loggers, log.Default())
	}

	return &Router{
		routes:   make(map[string]http.Handler),
		fallback: fallback,
		loggers:  loggers,
	}
}

// Register binds the handler to the exact path. Registering the same path again replaces
// the previous handler.
func (r *Router) Register(path string, handler http.Handler) *Router {
	r.routes[path] = handler
	return r
}

// Resolve returns the handler registered for the path, or the fallback.
func (r *Router) Resolve(path string) http.Handler {
	if handler, found := r.routes[path]; found {
		return handler
	}

	return r.fallback
}

// Dispatch invokes the capability of the resolved handler and always produces a response.
// Refused capabilities and nil responses turn into 405 Method Not Allowed, methods outside
// the capability set into 501 Not Implemented, HTTP errors into their codes and any other
// error (panics included) into 500 Internal Server Error.
func (r *Router) Dispatch(request *http.Request) *http.Response {
	response := r.invoke(request)

	for _, logger := range r.loggers {
		logger.Printf("%s %s %d", request.Method.String(), request.Path, response.Reveal().Code)
	}

	return response
}

func (r *Router) invoke(request *http.Request) (response *http.Response) {
	capability := capabilityOf(r.Resolve(request.Path), request.Method)
	if capability == nil {
		return request.Respond().Error(status.ErrMethodNotImplemented)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("handler panicked: %v", recovered)
			for _, logger := range r.loggers {
				logger.Printf("%s %s: %s", request.Method.String(), request.Path, err)
			}

			response = request.Respond().Error(status.ErrInternalServerError)
		}
	}()

	response, err := capability(request)
	switch {
	case err != nil:
		return request.Respond().Error(err)
	case response == nil:
		return request.Respond().Error(status.ErrMethodNotAllowed)
	default:
		return response
	}
}

func capabilityOf(handler http.Handler, m method.Method) http.HandlerFunc {
	switch m {
	case method.GET:
		return handler.HandleGet
	case method.POST:
		return handler.HandlePost
	case method.PUT:
		return handler.HandlePut
	case method.DELETE:
		return handler.HandleDelete
	default:
		return nil
	}
}

type notFound struct{}

func (notFound) HandleGet(*http.Request) (*http.Response, error) {
	return nil, status.ErrNotFound
}

func (notFound) HandlePost(*http.Request) (*http.Response, error) {
	return nil, status.ErrNotFound
}

func (notFound) HandlePut(*http.Request) (*http.Response, error) {
	return nil, status.ErrNotFound
}

func (notFound) HandleDelete(*http.Request) (*http.Response, error) {
	return nil, status.ErrNotFound
}
