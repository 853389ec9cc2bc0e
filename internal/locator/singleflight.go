package locator

import (
	"context"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/pkg/syncmap"
)

// provisionTable deduplicates concurrent provisioning of one cache slot.
// The key is "<adapter-id>/<version>"; the first caller for a key runs the
// provisioning function, later callers wait for its outcome. Mutual exclusion
// is per key, so unrelated adapters (or versions) provision in parallel.
type provisionTable struct {
	inflight syncmap.Map[string, *provisionCall]
}

type provisionCall struct {
	done   chan struct{}
	result adapter.ResolvedBinary
	err    error
}

// do runs fn for the key unless a call for the same key is already in flight,
// in which case it waits for that call and shares its outcome — including its
// failure. A shared failure is not retried here; the next Resolve call starts
// a fresh provisioning attempt.
func (t *provisionTable) do(ctx context.Context, key string, fn func() (adapter.ResolvedBinary, error)) (adapter.ResolvedBinary, error) {
	call, existed := t.inflight.LoadOrStoreNew(key, func() *provisionCall {
		return &provisionCall{done: make(chan struct{})}
	})

	if existed {
		select {
		case <-ctx.Done():
			return adapter.ResolvedBinary{}, ctx.Err()
		case <-call.done:
			return call.result, call.err
		}
	}

	call.result, call.err = fn()
	t.inflight.Delete(key)
	close(call.done)
	return call.result, call.err
}
