package config

import (
	"log"
	"time"
)

// Logger is anything able to print formatted lines. *log.Logger fits it.
type Logger interface {
	Printf(format string, v ...any)
}

type (
	NET struct {
		// ReadTimeout controls the maximal lifetime of IDLE connections. If no frame was
		// received in this period of time, it'll be closed.
		ReadTimeout time.Duration
		// WriteTimeout limits how long a single frame write may take.
		WriteTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop. Defaults to 5 seconds.
		AcceptLoopInterruptPeriod time.Duration
	}

	HTTP2 struct {
		// MaxFrameSize is the largest frame payload we are willing to receive. Must be in
		// range [16384; 16777215].
		MaxFrameSize uint32
		// InitialWindowSize is the flow-control window advertised for every stream and
		// the connection itself.
		InitialWindowSize uint32
		// MaxHeaderListSize limits the decoded size of a single header block.
		MaxHeaderListSize uint32
		// HeaderTableSize is the HPACK dynamic table size for decoding.
		HeaderTableSize uint32
		// MaxPendingStreams is how many requests may be accumulated at once on a single
		// connection. Headers of every stream above the limit are refused with
		// RST_STREAM(REFUSED_STREAM).
		MaxPendingStreams int
	}

	Body struct {
		// MaxSize describes the maximal size of a body, that can be processed. Bigger bodies
		// are answered with 413 Request Entity Too Large.
		MaxSize int
		// BufferPrealloc is the initial capacity of a buffer accumulating a request body.
		BufferPrealloc int
	}

	TLS struct {
		// Enabled switches between TLS with ALPN negotiation and HTTP/2 over cleartext TCP
		// with prior knowledge.
		Enabled bool `test:"nullable"`
		// CertFile and KeyFile have the priority over any other certificates source.
		CertFile string `test:"nullable"`
		KeyFile  string `test:"nullable"`
		// Domains are served with certificates issued by Let's Encrypt via autocert. They
		// are used only when the server isn't bound to a loopback address, otherwise a self-signed
		// certificate is generated.
		Domains []string `test:"nullable"`
		// CacheDir stores generated and issued certificates.
		CacheDir string
		// InsecureSkipVerify disables server certificate verification on the client side,
		// which is needed to talk to self-signed servers.
		InsecureSkipVerify bool `test:"nullable"`
	}

	Server struct {
		Addr string
	}

	Client struct {
		Addr string
		// Timeout bounds dialing, waiting for the server's settings, and every single wait
		// of Client.Do.
		Timeout time.Duration
	}
)

// Config holds settings used by both the server and the client.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	NET    NET
	HTTP2  HTTP2
	Body   Body
	TLS    TLS
	Server Server
	Client Client
	Logger Logger
}

// Default returns default config.
func Default() *Config {
	return &Config{
		NET: NET{
			ReadTimeout:               90 * time.Second,
			WriteTimeout:              10 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
		HTTP2: HTTP2{
			MaxFrameSize:      16 * 1024,
			InitialWindowSize: 1024 * 1024,
			MaxHeaderListSize: 64 * 1024,
			HeaderTableSize:   4096,
			// exactly one request is accumulated at a time
			MaxPendingStreams: 1,
		},
		Body: Body{
			MaxSize:        16 * 1024 * 1024, // 16 megabytes
			BufferPrealloc: 1024,
		},
		TLS: TLS{
			CacheDir: "certs",
		},
		Server: Server{
			Addr: "localhost:8080",
		},
		Client: Client{
			Addr:    "localhost:8080",
			Timeout: 5 * time.Second,
		},
		Logger: log.Default(),
	}
}
