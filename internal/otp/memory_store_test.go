package otp

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)
	}
}

func TestMemoryStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "user-1", "482913", time.Now().Add(5*time.Minute)))

	ok, err := s.Consume(ctx, "user-1", "482913")
	require.NoError(t, err)
	require.True(t, ok)

	// Second use of the same code fails.
	ok, err = s.Consume(ctx, "user-1", "482913")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_WrongCodeKeepsEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "user-1", "482913", time.Now().Add(5*time.Minute)))

	ok, err := s.Consume(ctx, "user-1", "000000")
	require.NoError(t, err)
	require.False(t, ok)

	// The stored code survives a failed attempt.
	ok, err = s.Consume(ctx, "user-1", "482913")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	require.NoError(t, s.Put(ctx, "user-1", "482913", base.Add(5*time.Minute)))

	// Just inside the window.
	current = base.Add(5*time.Minute - time.Second)
	ok, err := s.Consume(ctx, "user-1", "482913")
	require.NoError(t, err)
	require.True(t, ok)

	// At exactly the expiry instant the code is dead.
	require.NoError(t, s.Put(ctx, "user-1", "771204", base.Add(5*time.Minute)))
	current = base.Add(5 * time.Minute)
	ok, err = s.Consume(ctx, "user-1", "771204")
	require.NoError(t, err)
	require.False(t, ok)

	// The lazy reap removed the entry.
	require.Equal(t, 0, s.Len())
}

func TestMemoryStore_PutSupersedes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expires := time.Now().Add(5 * time.Minute)

	require.NoError(t, s.Put(ctx, "user-1", "111111", expires))
	require.NoError(t, s.Put(ctx, "user-1", "222222", expires))

	ok, err := s.Consume(ctx, "user-1", "111111")
	require.NoError(t, err)
	require.False(t, ok, "superseded code must be dead")

	ok, err = s.Consume(ctx, "user-1", "222222")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	s := NewMemoryStore()

	ok, err := s.Consume(context.Background(), "nobody", "482913")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "user-1", "482913", time.Now().Add(5*time.Minute)))

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Consume(ctx, "user-1", "482913")
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one racing consume may win")
}
