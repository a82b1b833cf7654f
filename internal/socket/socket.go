// Package socket provides a unified TCP/UDP abstraction with optional TLS
// and SOCKS5 tunnelling, so the hub and transfer layers share one
// connect/read/write/wait vocabulary regardless of address family or
// transport.
package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// Conn is the common surface the hub and transfer layers use: net.Conn
// plus WaitReadable. Dial and Listener.Accept return connections wrapped
// to provide it; a bare *net.TCPConn or *net.UDPConn does not satisfy it.
type Conn interface {
	net.Conn
	// WaitReadable blocks until the connection is ready for a read (true),
	// the timeout elapses (false), or an error occurs (err != nil).
	WaitReadable(timeout time.Duration) (ready bool, err error)
}

type options struct {
	tlsConfig *tls.Config
	socks5    string
}

// Option configures Dial.
type Option func(*options)

// WithTLS wraps the dialed connection in TLS using cfg (nil for defaults).
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithSOCKS5 tunnels the dial through a SOCKS5 proxy at addr.
func WithSOCKS5(addr string) Option {
	return func(o *options) { o.socks5 = addr }
}

// Dial connects to addr over network ("tcp", "tcp4", "tcp6", "udp", ...),
// applying TLS and/or SOCKS5 as configured.
func Dial(ctx context.Context, network, addr string, opts ...Option) (Conn, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		c   net.Conn
		err error
	)
	if o.socks5 != "" {
		if network != "tcp" && network != "tcp4" && network != "tcp6" {
			return nil, errors.New("socket: SOCKS5 only supports TCP")
		}
		dialer, derr := proxy.SOCKS5("tcp", o.socks5, nil, proxy.Direct)
		if derr != nil {
			return nil, derr
		}
		type contextDialer interface {
			DialContext(ctx context.Context, network, address string) (net.Conn, error)
		}
		if cd, ok := dialer.(contextDialer); ok {
			c, err = cd.DialContext(ctx, network, addr)
		} else {
			c, err = dialer.Dial(network, addr)
		}
	} else {
		d := net.Dialer{}
		c, err = d.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}

	if o.tlsConfig != nil {
		tc := tls.Client(c, o.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			tc.Close()
			return nil, err
		}
		c = tc
	}

	return &conn{Conn: c}, nil
}

// conn wraps a net.Conn, buffering at most one probed byte so
// WaitReadable can peek for readiness without losing data for the
// caller's subsequent Read.
type conn struct {
	net.Conn
	pending []byte
}

func (c *conn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

func (c *conn) WaitReadable(timeout time.Duration) (bool, error) {
	if len(c.pending) > 0 {
		return true, nil
	}
	// A one-byte read-deadline probe whose byte is buffered for the next Read.
	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	defer c.Conn.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	n, err := c.Conn.Read(one)
	if n > 0 {
		c.pending = one[:n]
		return true, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false, nil
	}
	return false, err
}

// ListenUDP opens a UDP socket on addr for search-result reception.
func ListenUDP(network, addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP(network, udpAddr)
}

// Listener accepts incoming peer connections, wrapping each in TLS when a
// tls.Config was supplied to Listen.
type Listener struct {
	ln  net.Listener
	tls *tls.Config
}

// Listen opens addr for incoming TCP connections (the transfer engine's
// passive-mode accept path); tlsConfig may be nil for a plaintext listener.
func Listen(network, addr string, tlsConfig *tls.Config) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, tls: tlsConfig}, nil
}

// Accept blocks for the next incoming connection.
func (l *Listener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if l.tls != nil {
		c = tls.Server(c, l.tls)
	}
	return &conn{Conn: c}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }
