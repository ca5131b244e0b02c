package memcli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type nowFuncType func() time.Time

var nowFunc nowFuncType = time.Now

// readBufferSize is the size of the chunks read from the socket.
const readBufferSize = 512

// Addr represents a memcached server address.
type Addr struct {
	Network string // Network representation of the address
	Address string // Address representation of the address
}

// NewAddr creates a TCP Addr for the given host and port.
func NewAddr(host string, port uint16) *Addr {
	return &Addr{
		Network: "tcp",
		Address: net.JoinHostPort(host, strconv.Itoa(int(port))),
	}
}

func (a *Addr) String() string {
	return a.Network + "://" + a.Address
}

func (a *Addr) dial(ctx context.Context, dialTimeout time.Duration) (net.Conn, error) {
	return (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, a.Network, a.Address)
}

// memcachedConn wraps a net.Conn and provides a way to read and write data
// from the connection.
type memcachedConn interface {
	io.WriteCloser

	// flush pushes buffered writes to the socket.
	flush() error
	// readLine reads a line from the connection using the given delimiter.
	readLine(delim byte) ([]byte, error)
	// readFull reads exactly n bytes, or what arrived before the error.
	readFull(n int64) ([]byte, error)

	setReadDeadline(d time.Time) error
	setWriteDeadline(d time.Time) error
}

var (
	_ memcachedConn = (*conn)(nil) // tcp socket
)

// conn is the TCP implementation of memcachedConn. It is used for exactly
// one request by one goroutine and closed afterward, it is not safe for
// concurrent use.
type conn struct {
	raw    net.Conn
	closed bool

	rr *bufio.Reader
	wr *bufio.Writer
}

// newConnContext dials a TCP connection
func newConnContext(ctx context.Context, addr *Addr, dialTimeout time.Duration) (*conn, error) {
	rawConn, err := addr.dial(ctx, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectFailed, "dial %s: %v", addr.Address, err)
	}

	return newConn(rawConn), nil
}

func newConn(rawConn net.Conn) *conn {
	return &conn{
		raw:    rawConn,
		closed: false,

		rr: bufio.NewReaderSize(rawConn, readBufferSize),
		wr: bufio.NewWriter(rawConn),
	}
}

var zeroTime = time.Time{}

func (c *conn) setReadDeadline(d time.Time) error {
	if d.IsZero() {
		return c.raw.SetReadDeadline(zeroTime)
	}

	return c.raw.SetReadDeadline(d)
}

func (c *conn) setWriteDeadline(d time.Time) error {
	if d.IsZero() {
		return c.raw.SetWriteDeadline(zeroTime)
	}

	return c.raw.SetWriteDeadline(d)
}

func (c *conn) readLine(delim byte) ([]byte, error) {
	if c.closed {
		return nil, errors.New("connection is closed")
	}

	return c.rr.ReadBytes(delim)
}

func (c *conn) readFull(n int64) ([]byte, error) {
	if c.closed {
		return nil, errors.New("connection is closed")
	}

	// grows with the data that actually arrives, n is announced by the server
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, c.rr, n)
	return buf.Bytes(), err
}

// Write writes data into the connection buffer, call flush to send it.
func (c *conn) Write(p []byte) (n int, err error) {
	if c.closed {
		return 0, errors.New("connection is closed")
	}

	return c.wr.Write(p)
}

func (c *conn) flush() error {
	if c.closed {
		return errors.New("connection is closed")
	}

	return c.wr.Flush()
}

// Close says quit to the server and closes the connection.
func (c *conn) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	var result *multierror.Error
	_ = c.raw.SetWriteDeadline(nowFunc().Add(100 * time.Millisecond))
	if _, err := c.raw.Write(_QuitCRLF); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "send quit"))
	}
	if err := c.raw.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close"))
	}

	return result.ErrorOrNil()
}
