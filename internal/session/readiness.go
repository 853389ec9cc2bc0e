package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/dap"
)

// dialRetryInterval paces connection attempts while a tcp-connect adapter is
// still bringing its server socket up.
const dialRetryInterval = 100 * time.Millisecond

// allocatePort reserves a free loopback port by binding and immediately
// releasing it. The port is then substituted into the adapter's arguments.
func allocatePort() (int, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate a loopback port: %w", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port
	_ = lis.Close()
	return port, nil
}

func substitutePort(args []string, port int) []string {
	out := make([]string, len(args))
	p := strconv.Itoa(port)
	for i, arg := range args {
		out[i] = strings.ReplaceAll(arg, adapter.PortPlaceholder, p)
	}
	return out
}

// dialWithRetry connects to the adapter's server socket, retrying refused
// connections until the context expires.
func dialWithRetry(ctx context.Context, address string) (dap.Transport, error) {
	var lastErr error
	for {
		transport, err := dap.DialTCP(ctx, address)
		if err == nil {
			return transport, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-time.After(dialRetryInterval):
		}
	}
}

// awaitStdoutMarker blocks until the marker substring appears on a process
// stdout line. After the marker is seen the stream keeps being drained in the
// background so the adapter never stalls on a full pipe.
func awaitStdoutMarker(ctx context.Context, r io.Reader, marker string, log logr.Logger) error {
	found := make(chan struct{})
	go func() {
		signaled := false
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			log.V(1).Info("adapter output", "stream", "stdout", "line", line)
			if !signaled && strings.Contains(line, marker) {
				signaled = true
				close(found)
			}
		}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("marker %q did not appear on adapter stdout: %w", marker, ctx.Err())
	case <-found:
		return nil
	}
}

// acceptWithContext accepts one connection from a tcp-callback adapter,
// honoring context cancellation by closing the listener.
func acceptWithContext(ctx context.Context, lis net.Listener) (net.Conn, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = lis.Close()
		case <-done:
		}
	}()

	conn, err := lis.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept adapter callback connection: %w", err)
	}
	return conn, nil
}

// logStream forwards process output lines to the logger until EOF.
func logStream(log logr.Logger, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.V(1).Info("adapter output", "stream", stream, "line", scanner.Text())
	}
}
