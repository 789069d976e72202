package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// ctxConn is a connection whose I/O cannot outlive the attempt context.
type ctxConn struct {
	net.Conn
	stop func() bool
}

// bindConn applies ctx's deadline to conn and unblocks pending reads and
// writes once ctx is done.
func bindConn(ctx context.Context, conn net.Conn) net.Conn {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return &ctxConn{Conn: conn, stop: stop}
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// ftpDialer dials the control and data connections of one FTP session.
// The library upgrades the control connection to explicit TLS itself but
// leaves data connections from a custom dial func alone, so those are
// wrapped here.
type ftpDialer struct {
	ctx    context.Context
	dialer net.Dialer
	tls    *tls.Config
	dials  int
}

func (d *ftpDialer) dial(network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}
	bound := bindConn(d.ctx, conn)
	d.dials++
	if d.tls != nil && d.dials > 1 {
		return tls.Client(bound, d.tls), nil
	}
	return bound, nil
}
