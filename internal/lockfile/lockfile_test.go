package lockfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	lf, err := New(path)
	require.NoError(t, err)
	defer lf.Close()

	require.NoError(t, lf.Lock(context.Background(), 0))
	assert.True(t, lf.Locked())

	require.NoError(t, lf.Unlock())
	assert.False(t, lf.Locked())
}

func TestRelativePathRejected(t *testing.T) {
	_, err := New("relative/cache.lock")
	assert.ErrorIs(t, err, ErrNeedAbsPath)
}

func TestSecondLockerWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	first, err := New(path)
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.Lock(context.Background(), 0))

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	acquired := make(chan error, 1)
	go func() {
		acquired <- second.Lock(context.Background(), time.Millisecond)
	}()

	select {
	case <-acquired:
		t.Fatal("second locker must block while the first holds the lock")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Close())

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second locker did not acquire the lock after release")
	}
}

func TestLockHonorsContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.lock")

	holder, err := New(path)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, holder.Lock(context.Background(), 0))

	waiter, err := New(path)
	require.NoError(t, err)
	defer waiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = waiter.Lock(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
