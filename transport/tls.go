package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"slices"
	"time"
)

// ProtoH2 is the ALPN protocol id of HTTP/2 over TLS.
const ProtoH2 = "h2"

var ErrNoH2 = errors.New("peer did not negotiate h2 via ALPN")

type TLS struct {
	cfg *tls.Config
	TCP
}

// NewTLS returns a TLS transport. The config is cloned and h2 is added to its NextProtos.
func NewTLS(cfg *tls.Config) *TLS {
	return &TLS{
		cfg: withH2(cfg),
		TCP: newTCP(nil),
	}
}

func (t *TLS) Bind(addr string) error {
	tcp, err := bindTCP(addr)
	if err != nil {
		return err
	}

	l := tls.NewListener(tcp, t.cfg)
	t.TCP = newTCP(tlsAdapter{tcp, l})

	return nil
}

type tlsAdapter struct {
	*net.TCPListener
	tls net.Listener
}

func (t tlsAdapter) Accept() (net.Conn, error) {
	return t.tls.Accept()
}

func withH2(cfg *tls.Config) *tls.Config {
	cfg = cfg.Clone()
	if !slices.Contains(cfg.NextProtos, ProtoH2) {
		cfg.NextProtos = append([]string{ProtoH2}, cfg.NextProtos...)
	}

	return cfg
}

// Handshake completes the TLS handshake of server-side connections and makes sure h2 was
// negotiated. Cleartext connections are returned as is.
func Handshake(conn net.Conn, timeout time.Duration) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil
	}

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
		defer conn.SetDeadline(time.Time{})
	}

	if err := tlsConn.Handshake(); err != nil {
		return err
	}

	return checkALPN(tlsConn)
}

func checkALPN(conn *tls.Conn) error {
	if conn.ConnectionState().NegotiatedProtocol != ProtoH2 {
		return ErrNoH2
	}

	return nil
}
