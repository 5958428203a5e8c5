package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/transport"
)

type fakeSocket struct {
	id        string
	closed    bool
	closeArgs string
}

func newFakeSocket() *fakeSocket { return &fakeSocket{id: uuid.NewString()} }

func (s *fakeSocket) Send(ctx context.Context, frame []byte, binary bool) error { return nil }
func (s *fakeSocket) Disconnect(ctx context.Context, reason string) error {
	s.closed = true
	s.closeArgs = reason
	return nil
}
func (s *fakeSocket) ReadyState() transport.ReadyState {
	if s.closed {
		return transport.StateClosed
	}
	return transport.StateOpen
}
func (s *fakeSocket) SocketID() string { return s.id }

func TestCreateFreshConnection(t *testing.T) {
	ctx := context.Background()
	var persisted int
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return []byte("{}"), nil },
		Persist:         func(ctx context.Context) error { persisted++; return nil },
	}, zap.NewNop(), time.Second)

	sock := newFakeSocket()
	conn, err := reg.Create(ctx, sock, protocol.EncodingJSON, []byte(`{"a":1}`), "", "")
	require.NoError(t, err)
	require.NotEmpty(t, conn.ConnID)
	require.NotEmpty(t, conn.Token)
	require.Equal(t, StatusConnected, conn.Status())
	require.Equal(t, 1, persisted)
}

func TestReconnectRebindsWithMatchingToken(t *testing.T) {
	ctx := context.Background()
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
	}, zap.NewNop(), time.Second)

	sock1 := newFakeSocket()
	conn, err := reg.Create(ctx, sock1, protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)

	reg.ConnDisconnected(ctx, conn, false, sock1.SocketID())
	require.Equal(t, StatusReconnecting, conn.Status())

	sock2 := newFakeSocket()
	rebound, err := reg.Create(ctx, sock2, protocol.EncodingJSON, nil, conn.ConnID, conn.Token)
	require.NoError(t, err)
	require.Equal(t, conn.ConnID, rebound.ConnID)
	require.Equal(t, StatusConnected, rebound.Status())
}

func TestReconnectWithWrongTokenFails(t *testing.T) {
	ctx := context.Background()
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
	}, zap.NewNop(), time.Second)

	sock1 := newFakeSocket()
	conn, err := reg.Create(ctx, sock1, protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)
	reg.ConnDisconnected(ctx, conn, false, sock1.SocketID())

	_, err = reg.Create(ctx, newFakeSocket(), protocol.EncodingJSON, nil, conn.ConnID, "wrong-token")
	require.Error(t, err)
}

func TestCleanDisconnectRemoves(t *testing.T) {
	ctx := context.Background()
	var disconnected bool
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
		OnDisconnect:    func(ctx context.Context, c *Connection) { disconnected = true },
	}, zap.NewNop(), time.Second)

	sock := newFakeSocket()
	conn, err := reg.Create(ctx, sock, protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)

	reg.ConnDisconnected(ctx, conn, true, sock.SocketID())

	_, ok := reg.Get(conn.ConnID)
	require.False(t, ok)
	require.True(t, disconnected)
}

func TestLivenessSweepReapsStaleReconnecting(t *testing.T) {
	ctx := context.Background()
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
	}, zap.NewNop(), 10*time.Millisecond)

	sock := newFakeSocket()
	conn, err := reg.Create(ctx, sock, protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)
	reg.ConnDisconnected(ctx, conn, false, sock.SocketID())

	time.Sleep(20 * time.Millisecond)
	reg.LivenessSweep(ctx)

	_, ok := reg.Get(conn.ConnID)
	require.False(t, ok)
}

func TestStaleSocketCloseIsIgnored(t *testing.T) {
	ctx := context.Background()
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
	}, zap.NewNop(), time.Second)

	sock1 := newFakeSocket()
	conn, err := reg.Create(ctx, sock1, protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)

	reg.ConnDisconnected(ctx, conn, false, sock1.SocketID())
	sock2 := newFakeSocket()
	_, err = reg.Create(ctx, sock2, protocol.EncodingJSON, nil, conn.ConnID, conn.Token)
	require.NoError(t, err)

	// A stale close event from sock1 (already superseded) must not tear
	// down the now-current sock2 binding.
	reg.ConnDisconnected(ctx, conn, true, sock1.SocketID())
	require.Equal(t, StatusConnected, conn.Status())
}

func TestSubscriptionFanOut(t *testing.T) {
	ctx := context.Background()
	reg := New(Hooks{
		CreateConnState: func(ctx context.Context, params []byte) ([]byte, error) { return nil, nil },
	}, zap.NewNop(), time.Second)

	conn, err := reg.Create(ctx, newFakeSocket(), protocol.EncodingJSON, nil, "", "")
	require.NoError(t, err)

	require.NoError(t, reg.SetSubscription(ctx, conn, "tick", true))
	subs := reg.Subscribers("tick")
	require.Len(t, subs, 1)
	require.Equal(t, conn.ConnID, subs[0].ConnID)

	require.NoError(t, reg.SetSubscription(ctx, conn, "tick", false))
	require.Empty(t, reg.Subscribers("tick"))
}
