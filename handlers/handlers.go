// Package handlers contains the handlers served by the example server.
package handlers

import (
	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/kv"
	"github.com/indigo-web/utils/uf"
)

type Logger interface {
	Printf(format string, v ...any)
}

// HelloWorld answers GET with 404 Not Found and POST with 402 Payment Required.
type HelloWorld struct {
	http.Unsupported
}

func (HelloWorld) HandleGet(request *http.Request) (*http.Response, error) {
	return request.Respond().
		Code(status.NotFound).
		String("Hello World (GET req)\n"), nil
}

func (HelloWorld) HandlePost(request *http.Request) (*http.Response, error) {
	return request.Respond().
		Code(status.PaymentRequired).
		String("Hello World (POST req)\n"), nil
}

// Root logs everything it receives and acknowledges GET and POST requests.
type Root struct {
	http.Unsupported
	logger Logger
}

func NewRoot(logger Logger) Root {
	return Root{logger: logger}
}

func (r Root) HandleGet(request *http.Request) (*http.Response, error) {
	r.logger.Printf("Root (GET) handler called")
	r.dump(request)

	return request.Respond().String("GET Handling response sent (GET req)\n"), nil
}

func (r Root) HandlePost(request *http.Request) (*http.Response, error) {
	r.logger.Printf("Root (POST) handler called")
	r.logger.Printf("Content received: %s", request.Body)
	r.dump(request)

	return request.Respond().String("POST Handling response sent (POST req)\n"), nil
}

func (r Root) dump(request *http.Request) {
	r.logger.Printf("Headers: %s", render(request.Headers))
	r.logger.Printf("Parameters: %s", render(request.Params))
}

func render(storage *kv.Storage) string {
	if storage == nil {
		return "{}"
	}

	data, err := storage.MarshalJSON()
	if err != nil {
		return err.Error()
	}

	return uf.B2S(data)
}
