package client

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/h2pair/config"
	"github.com/indigo-web/h2pair/handlers"
	"github.com/indigo-web/h2pair/http"
	"github.com/indigo-web/h2pair/http/method"
	"github.com/indigo-web/h2pair/http/status"
	"github.com/indigo-web/h2pair/router"
	"github.com/indigo-web/h2pair/server"
	"github.com/indigo-web/h2pair/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 3 * time.Second

func getConfig() *config.Config {
	cfg := config.Default()
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Client.Timeout = testTimeout
	return cfg
}

// hang blocks the handler until released
type hang struct {
	http.Unsupported
	release chan struct{}
}

func (h hang) HandleGet(request *http.Request) (*http.Response, error) {
	<-h.release
	return request.Respond(), nil
}

func echo(request *http.Request) (*http.Response, error) {
	return request.Respond().
		Header("X-Params", paramsJSON(request)).
		String(request.Body), nil
}

func paramsJSON(request *http.Request) string {
	data, _ := request.Params.MarshalJSON()
	return string(data)
}

func runServer(t *testing.T, cfg *config.Config) (addr string) {
	release := make(chan struct{})
	root := handlers.NewRoot(cfg.Logger)
	r := router.New(root, cfg.Logger).
		Register("/helloworld", handlers.HelloWorld{}).
		Register("/echo", http.Funcs{Post: echo, Put: echo}).
		Register("/hang", hang{release: release})

	srv := server.New(cfg, r)
	require.NoError(t, srv.Bind())

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve()
	}()

	t.Cleanup(func() {
		close(release)
		srv.Stop()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			assert.Fail(t, "server didn't stop in time")
		}
	})

	return srv.Addr().String()
}

type collector struct {
	mu        sync.Mutex
	responses []*Response
}

func (c *collector) handle(response *Response) {
	c.mu.Lock()
	c.responses = append(c.responses, response)
	c.mu.Unlock()
}

func (c *collector) Responses() []*Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Response(nil), c.responses...)
}

func dial(t *testing.T, cfg *config.Config, addr string, handler ResponseHandler) *Client {
	clientCfg := *cfg
	clientCfg.Client.Addr = addr

	c, err := Dial(context.Background(), &clientCfg, handler)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})

	return c
}

func TestClient(t *testing.T) {
	cfg := getConfig()
	addr := runServer(t, cfg)

	t.Run("GET hello world", func(t *testing.T) {
		responses := new(collector)
		c := dial(t, cfg, addr, responses.handle)

		streamID, err := c.Send(NewRequest().Path("/helloworld").Build())
		require.NoError(t, err)
		require.Equal(t, uint32(3), streamID)
		require.NoError(t, c.AwaitAll(testTimeout))

		got := responses.Responses()
		require.Len(t, got, 1)
		require.Equal(t, uint32(3), got[0].StreamID)
		require.Equal(t, status.NotFound, got[0].Code)
		require.Equal(t, "Hello World (GET req)\n", got[0].String())
		require.NotEmpty(t, got[0].Headers.Value("x-request-id"))
		require.Zero(t, c.Pending())
	})

	t.Run("POST hello world twice", func(t *testing.T) {
		responses := new(collector)
		c := dial(t, cfg, addr, responses.handle)

		request := NewRequest().
			Method(method.POST).
			Path("/helloworld").
			Body("Hello there everyone").
			Header("headerOne", "one").
			Headers(map[string]string{"headerTwo": "two", "headerThree": "three"}).
			Query("paramOne", "one").
			Queries(map[string]string{"paramTwo": "two", "paramThree": "three"}).
			Build()

		first, err := c.Send(request)
		require.NoError(t, err)
		second, err := c.Send(request)
		require.NoError(t, err)
		require.Equal(t, []uint32{3, 5}, []uint32{first, second})
		require.Equal(t, 2, c.Pending())

		require.NoError(t, c.AwaitAll(testTimeout))
		got := responses.Responses()
		require.Len(t, got, 2)
		for i, response := range got {
			require.Equal(t, []uint32{3, 5}[i], response.StreamID)
			require.Equal(t, status.PaymentRequired, response.Code)
			require.Equal(t, "Hello World (POST req)\n", response.String())
		}
	})

	t.Run("Do", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)
		body := uniuri.NewLen(4096)

		response, err := c.Do(NewRequest().
			Method(method.POST).
			Path("/echo").
			Query("b", "2").
			Query("a", "1").
			Body(body).
			Build())
		require.NoError(t, err)
		require.Equal(t, status.OK, response.Code)
		require.Equal(t, body, response.String())
		require.Equal(t, `{"b":"2","a":"1"}`, response.Headers.Value("x-params"))
	})

	t.Run("body above the frame size", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)
		body := uniuri.NewLen(3*int(cfg.HTTP2.MaxFrameSize) + 17)

		response, err := c.Do(NewRequest().Method(method.PUT).Path("/echo").Body(body).Build())
		require.NoError(t, err)
		require.Equal(t, body, response.String())
	})

	t.Run("root fallback", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)

		response, err := c.Do(NewRequest().Path("/somewhere/else").Build())
		require.NoError(t, err)
		require.Equal(t, status.OK, response.Code)
		require.Equal(t, "GET Handling response sent (GET req)\n", response.String())
	})

	t.Run("method not allowed", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)

		response, err := c.Do(NewRequest().Method(method.PUT).Path("/helloworld").Body("x").Build())
		require.NoError(t, err)
		require.Equal(t, status.MethodNotAllowed, response.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)

		streamID, err := c.Send(NewRequest().Path("/hang").Build())
		require.NoError(t, err)

		start := time.Now()
		err = c.AwaitAll(time.Second)
		require.ErrorIs(t, err, ErrTimeout)
		require.Less(t, time.Since(start), 2*time.Second)

		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		require.Equal(t, streamID, timeoutErr.StreamID)
		require.Equal(t, PhaseResponse, timeoutErr.Phase)
	})

	t.Run("close fails pending streams", func(t *testing.T) {
		c := dial(t, cfg, addr, nil)

		_, err := c.Send(NewRequest().Path("/hang").Build())
		require.NoError(t, err)
		require.NoError(t, c.Close())

		err = c.AwaitAll(testTimeout)
		require.ErrorIs(t, err, ErrClosed)

		_, err = c.Send(NewRequest().Build())
		require.ErrorIs(t, err, ErrClosed)
	})
}

func TestClientTLS(t *testing.T) {
	cfg := getConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.CacheDir = t.TempDir()
	cfg.TLS.InsecureSkipVerify = true
	addr := runServer(t, cfg)

	c := dial(t, cfg, addr, nil)
	response, err := c.Do(NewRequest().Path("/helloworld").Build())
	require.NoError(t, err)
	require.Equal(t, status.NotFound, response.Code)
	require.Equal(t, "Hello World (GET req)\n", response.String())
}

func TestDialNoServer(t *testing.T) {
	cfg := getConfig()
	cfg.Client.Addr = "127.0.0.1:1"
	cfg.Client.Timeout = time.Second

	_, err := Dial(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestClientTLSFromFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := transport.SelfSignedConfig(dir)
	require.NoError(t, err)

	cfg := getConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.CertFile = filepath.Join(dir, "localhost.crt")
	cfg.TLS.KeyFile = filepath.Join(dir, "localhost.key")
	cfg.TLS.InsecureSkipVerify = true
	addr := runServer(t, cfg)

	c := dial(t, cfg, addr, nil)
	response, err := c.Do(NewRequest().Method(method.POST).Path("/helloworld").Body("hi").Build())
	require.NoError(t, err)
	require.Equal(t, status.PaymentRequired, response.Code)
}
