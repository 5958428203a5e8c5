package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	a := PersistedActor{HasInitiated: true, State: []byte{0xa0}}
	blob, err := MarshalBlob(a)
	require.NoError(t, err)

	out, err := UnmarshalBlob(blob)
	require.NoError(t, err)
	require.True(t, out.HasInitiated)
}

func TestEnvelopeRejectsUnknownVersion(t *testing.T) {
	blob := []byte{envelopeMagicByte, 0xFF, 0xFF, 0, 0, 0}
	_, err := UnmarshalBlob(blob)
	require.Error(t, err)
}

func TestEnvelopeRejectsBadMagic(t *testing.T) {
	blob := []byte{0x00, 0x00, 0x01, 0, 0, 0}
	_, err := UnmarshalBlob(blob)
	require.Error(t, err)
}

func TestMemoryDriverReadWrite(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	_, ok, err := d.ReadBlob(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.WriteBlob(ctx, "a1", []byte("hello")))
	blob, ok, err := d.ReadBlob(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), blob)
}

func TestMemoryDriverDueAlarms(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()
	now := time.Now()

	require.NoError(t, d.SetAlarm(ctx, "a1", now.Add(-time.Second)))
	require.NoError(t, d.SetAlarm(ctx, "a2", now.Add(time.Hour)))

	due, err := d.DueAlarms(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, due)
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryDriver())

	err := s.Save(ctx, "a1", PersistedActor{HasInitiated: true, State: []byte{1}})
	require.NoError(t, err)

	out, ok, err := s.Load(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, out.HasInitiated)
}

func TestQueueCoalescesConcurrentWrites(t *testing.T) {
	q := &actorQueue{}
	var mu sync.Mutex
	var ran []int

	block := make(chan struct{})
	var wg sync.WaitGroup

	// First write blocks until we release it, so the next two calls are
	// guaranteed to land on the pending slot instead of starting their
	// own goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := q.enqueue(context.Background(), func(ctx context.Context) error {
			<-block
			mu.Lock()
			ran = append(ran, 1)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond) // let the first write start running

	for i := 2; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.enqueue(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				ran = append(ran, i)
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ran, 2) // the first write, then one coalesced write (the last of 2/3)
	require.Equal(t, 1, ran[0])
}
