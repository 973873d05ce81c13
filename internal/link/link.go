// Package link carries frames between the ground software and the vehicle
// over a TCP connection.
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/skybound/groundctl/internal/frame"
)

// ErrTimeout reports that no frame arrived within the receive deadline. Idle
// links hit this constantly; callers treat it as a tick and retry.
var ErrTimeout = errors.New("link: receive timed out")

const defaultReceiveTimeout = 1 * time.Second

// Link is a frame-oriented wrapper around a single connection. Send and
// Receive may be used from different goroutines, but each from at most one.
type Link struct {
	conn           net.Conn
	receiveTimeout time.Duration
}

// Dial connects to the vehicle (or its proxy) at addr.
func Dial(addr string) (*Link, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("link: dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection. The accepting side of the link (and
// tests) use this directly.
func New(conn net.Conn) *Link {
	return &Link{conn: conn, receiveTimeout: defaultReceiveTimeout}
}

// SetReceiveTimeout bounds how long a single Receive waits for a frame.
func (l *Link) SetReceiveTimeout(d time.Duration) {
	l.receiveTimeout = d
}

// Send encodes f and writes it to the connection. The frame is handed to the
// kernel and forgotten; no acknowledgement is awaited.
func (l *Link) Send(f frame.Frame) error {
	if _, err := l.conn.Write(f.Encode()); err != nil {
		return fmt.Errorf("link: send: %w", err)
	}
	return nil
}

// Receive reads the next frame, waiting at most the receive timeout. The
// reader resynchronizes on the wire header byte, so stream corruption costs
// frames but never the connection.
func (l *Link) Receive() (frame.Frame, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(l.receiveTimeout)); err != nil {
		return frame.Frame{}, fmt.Errorf("link: set deadline: %w", err)
	}
	var buf [frame.EncodedSize]byte
	for {
		if _, err := io.ReadFull(l.conn, buf[:1]); err != nil {
			return frame.Frame{}, receiveErr(err)
		}
		if buf[0] != frame.WireHeader {
			continue
		}
		if _, err := io.ReadFull(l.conn, buf[1:]); err != nil {
			return frame.Frame{}, receiveErr(err)
		}
		return frame.Decode(buf[:])
	}
}

func receiveErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("link: receive: %w", err)
}

// Close shuts the connection down. An in-flight Receive returns with an
// error.
func (l *Link) Close() error {
	return l.conn.Close()
}
