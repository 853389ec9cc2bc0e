package syncmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStore(t *testing.T) {
	var m Map[string, int]

	_, found := m.Load("missing")
	assert.False(t, found)

	m.Store("a", 1)
	v, found := m.Load("a")
	require.True(t, found)
	assert.Equal(t, 1, v)
}

func TestLoadOrStoreNew(t *testing.T) {
	var m Map[string, *int]

	calls := 0
	factory := func() *int {
		calls++
		v := 42
		return &v
	}

	first, existed := m.LoadOrStoreNew("k", factory)
	require.False(t, existed)
	require.NotNil(t, first)

	second, existed := m.LoadOrStoreNew("k", factory)
	assert.True(t, existed)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestConcurrentLoadOrStore(t *testing.T) {
	var m Map[int, *sync.Mutex]

	const goroutines = 32
	results := make([]*sync.Mutex, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mu, _ := m.LoadOrStoreNew(7, func() *sync.Mutex { return &sync.Mutex{} })
			results[i] = mu
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i], "all goroutines must observe the same value for the key")
	}
	assert.Equal(t, 1, m.Len())
}
