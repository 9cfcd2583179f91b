// Package transport provides listeners accepting HTTP/2 connections over cleartext TCP
// (prior knowledge) or TLS with ALPN, and the dialer used by the client.
package transport

import (
	"net"

	"github.com/indigo-web/h2pair/config"
)

type Transport interface {
	Bind(addr string) error
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	Addr() net.Addr
	Stop()
	Close() error
	Wait()
}
