package dap

import (
	"context"
	"fmt"

	"github.com/google/go-dap"
)

// clientID identifies dapbridge to debug adapters during initialize.
const clientID = "dapbridge"

// InitializeHandshake performs the DAP initialize round-trip on the transport
// and returns the capabilities advertised by the adapter. Events arriving
// before the initialize response (some adapters emit output events while
// starting up) are skipped.
//
// A successful round-trip is the readiness signal for stdio adapters: the
// process is alive, speaking DAP, and has told us what it can do.
func InitializeHandshake(ctx context.Context, transport Transport, adapterID string) (*dap.Capabilities, error) {
	request := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:        clientID,
			ClientName:      clientID,
			AdapterID:       adapterID,
			PathFormat:      "path",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			Locale:          "en-US",
		},
	}

	if err := transport.WriteMessage(request); err != nil {
		return nil, fmt.Errorf("failed to send initialize request: %w", err)
	}

	type readResult struct {
		msg dap.Message
		err error
	}
	resultCh := make(chan readResult, 1)

	// ReadMessage has no context plumbing; run it in a goroutine so the
	// handshake honors cancellation. On cancellation the caller closes the
	// transport, which unblocks the pending read.
	go func() {
		for {
			msg, err := transport.ReadMessage()
			if err != nil {
				resultCh <- readResult{err: err}
				return
			}
			if _, isEvent := msg.(dap.EventMessage); isEvent {
				continue
			}
			resultCh <- readResult{msg: msg}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read initialize response: %w", result.err)
		}
		response, ok := result.msg.(*dap.InitializeResponse)
		if !ok {
			return nil, fmt.Errorf("expected initialize response, got %T", result.msg)
		}
		if !response.Success {
			return nil, fmt.Errorf("adapter rejected initialize request: %s", response.Message)
		}
		return &response.Body, nil
	}
}
