package http

import (
	"errors"
	"testing"

	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/http/mime"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/kv"
	"github.com/stretchr/testify/require"
)

func TestResponse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		fields := NewResponse().Reveal()
		require.Equal(t, status.OK, fields.Code)
		require.Equal(t, mime.Plain, fields.ContentType)
		require.True(t, fields.Headers.Empty())
		require.Empty(t, fields.Payload)
	})

	t.Run("builder", func(t *testing.T) {
		fields := NewResponse().
			Code(status.NotFound).
			Header("x-custom", "1").
			Header("Content-Type", mime.HTML).
			String("Hello World (GET req)\n").
			Reveal()

		require.Equal(t, status.NotFound, fields.Code)
		require.Equal(t, mime.HTML, fields.ContentType)
		require.Equal(t, []kv.Pair{{Key: "x-custom", Value: "1"}}, fields.Headers.Expose())
		require.Equal(t, "Hello World (GET req)\n", string(fields.Payload))
	})

	t.Run("headers map", func(t *testing.T) {
		fields := NewResponse().Headers(map[string]string{"b": "2", "a": "1"}).Reveal()
		require.Equal(t, []kv.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, fields.Headers.Expose())
	})

	t.Run("json", func(t *testing.T) {
		fields := NewResponse().JSON(map[string]int{"hello": 1}).Reveal()
		require.Equal(t, mime.JSON, fields.ContentType)
		require.JSONEq(t, `{"hello":1}`, string(fields.Payload))
	})

	t.Run("http error", func(t *testing.T) {
		fields := NewResponse().Error(status.ErrMethodNotAllowed).Reveal()
		require.Equal(t, status.MethodNotAllowed, fields.Code)
		require.Equal(t, "method not allowed", string(fields.Payload))
	})

	t.Run("plain error", func(t *testing.T) {
		fields := NewResponse().Error(errors.New("boom")).Reveal()
		require.Equal(t, status.InternalServerError, fields.Code)
		require.Equal(t, "boom", string(fields.Payload))
	})

	t.Run("nil error", func(t *testing.T) {
		fields := NewResponse().Code(status.Created).Error(nil).Reveal()
		require.Equal(t, status.Created, fields.Code)
	})
}

func TestRequest(t *testing.T) {
	t.Run("dump", func(t *testing.T) {
		request := NewRequest(3, method.GET, "/helloworld")
		request.Headers.Set(":method", "GET").Set("accept", "*/*")
		request.Params.Set("paramOne", "one")

		dump, err := request.Dump()
		require.NoError(t, err)
		require.JSONEq(t, `{
			"ID": "`+request.ID.String()+`",
			"METHOD": "GET",
			"PATH": "/helloworld",
			"HEADERS": {":method": "GET", "accept": "*/*"},
			"PARAMETERS": {"paramOne": "one"}
		}`, string(dump))
	})

	t.Run("unique ids", func(t *testing.T) {
		require.NotEqual(t, NewRequest(3, method.GET, "/").ID, NewRequest(3, method.GET, "/").ID)
	})
}

func TestHandlers(t *testing.T) {
	request := NewRequest(3, method.PUT, "/")

	t.Run("unsupported", func(t *testing.T) {
		var handler Handler = Unsupported{}
		for _, capability := range []HandlerFunc{
			handler.HandleGet, handler.HandlePost, handler.HandlePut, handler.HandleDelete,
		} {
			response, err := capability(request)
			require.Nil(t, response)
			require.ErrorIs(t, err, status.ErrMethodNotAllowed)
		}
	})

	t.Run("funcs", func(t *testing.T) {
		handler := Funcs{
			Put: func(r *Request) (*Response, error) {
				return String(r, "put"), nil
			},
		}

		response, err := handler.HandlePut(request)
		require.NoError(t, err)
		require.Equal(t, "put", string(response.Reveal().Payload))

		_, err = handler.HandleGet(request)
		require.ErrorIs(t, err, status.ErrMethodNotAllowed)
	})
}
