package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/indigo-web/h2pair/config"
)

// Dial connects to cfg.Client.Addr. With TLS enabled, h2 is offered via ALPN and the
// connection is refused unless the server picked it.
func Dial(ctx context.Context, cfg *config.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.Client.Timeout}
	if !cfg.TLS.Enabled {
		return dialer.DialContext(ctx, "tcp", cfg.Client.Addr)
	}

	host, _, err := net.SplitHostPort(cfg.Client.Addr)
	if err != nil {
		return nil, err
	}

	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config: &tls.Config{
			ServerName:         host,
			NextProtos:         []string{ProtoH2},
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}

	conn, err := tlsDialer.DialContext(ctx, "tcp", cfg.Client.Addr)
	if err != nil {
		return nil, err
	}

	if err = checkALPN(conn.(*tls.Conn)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}
