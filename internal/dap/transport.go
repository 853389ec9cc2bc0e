// Package dap adapts the go-dap codec to the byte streams of a spawned debug
// adapter process. It deliberately knows nothing about adapter selection or
// session orchestration; it only moves DAP messages over stdio or TCP.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// ErrTransportClosed is returned by transport operations after Close.
var ErrTransportClosed = errors.New("transport is closed")

// Transport provides DAP message I/O over one connection to a debug adapter.
// Implementations are safe for one concurrent reader and one concurrent
// writer; multiple concurrent reads (or writes) are not supported.
type Transport interface {
	// ReadMessage blocks until the next complete DAP message is available.
	ReadMessage() (dap.Message, error)

	// WriteMessage writes a DAP message to the transport.
	WriteMessage(msg dap.Message) error

	// Close releases the transport's resources. Blocked ReadMessage and
	// WriteMessage calls return with an error after Close.
	Close() error
}

type streamTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer

	closeOnce sync.Once
	closeErr  error
	closers   []io.Closer

	// writeMu serializes writes; stateMu guards closed.
	writeMu sync.Mutex
	stateMu sync.Mutex
	closed  bool
}

// NewStdioTransport creates a Transport over the stdout/stdin pipes of an
// adapter process. Reads come from the adapter's stdout, writes go to its stdin.
func NewStdioTransport(fromAdapter io.ReadCloser, toAdapter io.WriteCloser) Transport {
	return &streamTransport{
		reader:  bufio.NewReader(fromAdapter),
		writer:  bufio.NewWriter(toAdapter),
		closers: []io.Closer{fromAdapter, toAdapter},
	}
}

// NewTCPTransport creates a Transport over an established TCP connection.
func NewTCPTransport(conn net.Conn) Transport {
	return &streamTransport{
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		closers: []io.Closer{conn},
	}
}

// DialTCP connects to a listening debug adapter and returns a Transport.
func DialTCP(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial TCP %s: %w", address, err)
	}
	return NewTCPTransport(conn), nil
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return msg, nil
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

func (t *streamTransport) Close() error {
	t.closeOnce.Do(func() {
		t.stateMu.Lock()
		t.closed = true
		t.stateMu.Unlock()

		var errs []error
		for _, c := range t.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

func (t *streamTransport) isClosed() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.closed
}
