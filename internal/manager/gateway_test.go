package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/dispatch"
	"github.com/rivet-dev/actor-core/internal/persist"
)

func echoDefinition() *actor.Definition {
	return &actor.Definition{
		Name: "echo",
		Actions: map[string]dispatch.Handler{
			"echo": func(_ context.Context, args []byte) ([]byte, error) { return args, nil },
		},
	}
}

func newTestGateway(t *testing.T, selfRunnerID string) (*Gateway, *persist.MemoryDriver) {
	t.Helper()

	driver := persist.NewMemoryDriver()
	store := persist.NewStore(driver)

	lookup := func(actorID string) (*actor.Definition, bool) {
		name, ok, err := driver.LookupByID(context.Background(), actorID)
		if err != nil || !ok || name != "echo" {
			return nil, false
		}
		return echoDefinition(), true
	}

	rt, err := actor.NewRuntime(store, actor.DefaultTimeouts(), lookup, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { rt.Shutdown(context.Background()) })

	directory := NewDirectory(driver)
	runners := NewRunnerRegistry(time.Second, zap.NewNop())

	return NewGateway(directory, runners, rt, selfRunnerID, zap.NewNop()), driver
}

func TestGatewayResolveCreateThenLocalInstance(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestGateway(t, "self")

	resolved, err := gw.Resolve(ctx, Query{Kind: QueryCreate, Name: "echo", Key: []string{"room-1"}})
	require.NoError(t, err)
	require.True(t, resolved.Created)
	require.NotEmpty(t, resolved.ActorID)

	inst, err := gw.LocalInstance(ctx, resolved.ActorID, nil)
	require.NoError(t, err)
	require.Equal(t, resolved.ActorID, inst.ID())
}

func TestGatewayResolveGetForKeyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestGateway(t, "self")

	created, err := gw.Resolve(ctx, Query{Kind: QueryGetOrCreateForKey, Name: "echo", Key: []string{"room-1"}})
	require.NoError(t, err)
	require.True(t, created.Created)

	again, err := gw.Resolve(ctx, Query{Kind: QueryGetForKey, Name: "echo", Key: []string{"room-1"}})
	require.NoError(t, err)
	require.Equal(t, created.ActorID, again.ActorID)
}

func TestGatewayRouteLocalWhenUnclaimed(t *testing.T) {
	gw, _ := newTestGateway(t, "self")

	_, isProxy := gw.Route("some-actor-id")
	require.False(t, isProxy)
}

func TestGatewayRouteProxiesToRemoteOwner(t *testing.T) {
	gw, _ := newTestGateway(t, "self")
	gw.Runners().Heartbeat("remote", "http://remote:8080", []string{"actor-1"})

	addr, isProxy := gw.Route("actor-1")
	require.True(t, isProxy)
	require.Equal(t, "http://remote:8080", addr)
}

func TestGatewayListDelegatesToDirectory(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestGateway(t, "self")

	_, err := gw.Resolve(ctx, Query{Kind: QueryCreate, Name: "echo", Key: []string{"room-1"}})
	require.NoError(t, err)

	summaries, err := gw.List(ctx, "echo", nil, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}
