package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeartbeatThenOwnerOf(t *testing.T) {
	r := NewRunnerRegistry(time.Second, zap.NewNop())
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1", "actor-2"})

	addr, ok := r.OwnerOf("actor-1", "runner-b")
	require.True(t, ok)
	require.Equal(t, "http://a:8080", addr)
}

func TestOwnerOfExcludesSelf(t *testing.T) {
	r := NewRunnerRegistry(time.Second, zap.NewNop())
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1"})

	_, ok := r.OwnerOf("actor-1", "runner-a")
	require.False(t, ok)
}

func TestOwnerOfUnknownActor(t *testing.T) {
	r := NewRunnerRegistry(time.Second, zap.NewNop())
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1"})

	_, ok := r.OwnerOf("actor-unknown", "runner-b")
	require.False(t, ok)
}

func TestSweepDropsStaleRunners(t *testing.T) {
	r := NewRunnerRegistry(10*time.Millisecond, zap.NewNop())
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1"})

	time.Sleep(20 * time.Millisecond)
	r.Sweep()

	_, ok := r.OwnerOf("actor-1", "runner-b")
	require.False(t, ok)
}

func TestHeartbeatRefreshesBeforeSweep(t *testing.T) {
	r := NewRunnerRegistry(30*time.Millisecond, zap.NewNop())
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1"})

	time.Sleep(15 * time.Millisecond)
	r.Heartbeat("runner-a", "http://a:8080", []string{"actor-1"})
	time.Sleep(20 * time.Millisecond)
	r.Sweep()

	_, ok := r.OwnerOf("actor-1", "runner-b")
	require.True(t, ok)
}
