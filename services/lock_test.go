package services

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       "localhost:0",
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("redis disabled in tests")
		},
	})
}

func TestLocalUploadLock_Serializes(t *testing.T) {
	lock := NewLocalUploadLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "file", time.Second)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "file", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := lock.Acquire(ctx, "mongo", 10*time.Millisecond)
	require.NoError(t, err, "locks are per backend")
	other()

	release()
	release()

	again, err := lock.Acquire(ctx, "file", 10*time.Millisecond)
	require.NoError(t, err)
	again()
}

func TestLocalUploadLock_WaitsForRelease(t *testing.T) {
	lock := NewLocalUploadLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "file", time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var acquired error
	go func() {
		defer wg.Done()
		r, err := lock.Acquire(ctx, "file", 2*time.Second)
		acquired = err
		if err == nil {
			r()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()
	assert.NoError(t, acquired)
}

func TestLocalUploadLock_ContextCancel(t *testing.T) {
	lock := NewLocalUploadLock()
	release, err := lock.Acquire(context.Background(), "file", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lock.Acquire(ctx, "file", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisUploadLock_ReportsConnectionErrors(t *testing.T) {
	lock := NewRedisUploadLock(newTestRedisClient())
	_, err := lock.Acquire(context.Background(), "file", 10*time.Millisecond)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, "catalog:upload-lock:file", UploadLockKey("file"))
}

func TestMemoryReportStore(t *testing.T) {
	store := NewMemoryReportStore()
	ctx := context.Background()

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, store.Save(ctx, models.ImportRecord{FileName: "a.csv"}))
	require.NoError(t, store.Save(ctx, models.ImportRecord{FileName: "b.csv"}))

	last, err = store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.csv", last.FileName)
}

func TestRedisReportStore_ReportsConnectionErrors(t *testing.T) {
	store := NewRedisReportStore(newTestRedisClient())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, models.ImportRecord{FileName: "a.csv"}))
	_, err := store.Last(ctx)
	assert.Error(t, err)
}
