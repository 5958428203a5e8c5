package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/codec"
	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/registry"
	"github.com/rivet-dev/actor-core/internal/transport"
)

// capturingSocket records every frame sent to it, standing in for a real
// transport.Socket the way internal/registry's tests do.
type capturingSocket struct {
	id     string
	frames [][]byte
}

func newCapturingSocket() *capturingSocket { return &capturingSocket{id: uuid.NewString()} }

func (s *capturingSocket) Send(_ context.Context, frame []byte, _ bool) error {
	s.frames = append(s.frames, frame)
	return nil
}
func (s *capturingSocket) Disconnect(_ context.Context, _ string) error { return nil }
func (s *capturingSocket) ReadyState() transport.ReadyState             { return transport.StateOpen }
func (s *capturingSocket) SocketID() string                             { return s.id }

func newTestRuntime(t *testing.T) (*actor.Runtime, *actor.Definition) {
	t.Helper()
	store := persist.NewStore(persist.NewMemoryDriver())
	def := CounterDefinition()
	lookup := func(string) (*actor.Definition, bool) { return def, true }

	rt, err := actor.NewRuntime(store, actor.DefaultTimeouts(), lookup, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { rt.Shutdown(context.Background()) })
	return rt, def
}

// connect opens a JSON-encoded connection against inst, mirroring the shape
// internal/httpapi's connect handlers build for every real socket.
func connect(t *testing.T, inst *actor.Instance) (*registry.Connection, codec.Codec, *capturingSocket) {
	t.Helper()
	sock := newCapturingSocket()
	enc, err := codec.ForEncoding(protocol.EncodingJSON)
	require.NoError(t, err)

	conn, _, err := inst.CreateConn(context.Background(), sock, enc.Encoding(), nil, "", "")
	require.NoError(t, err)
	return conn, enc, sock
}

func callAction(t *testing.T, inst *actor.Instance, conn *registry.Connection, enc codec.Codec, name string, args []byte) protocol.ToClient {
	t.Helper()
	reply, err := inst.ProcessMessage(context.Background(), protocol.ToServer{
		Tag:        protocol.ToServerAction,
		ActionID:   1,
		ActionName: name,
		Args:       args,
	}, conn, enc)
	require.NoError(t, err)
	require.NotNil(t, reply)
	return *reply
}

// TestCounterIncrementThenReload is spec.md §8 scenario 1 verbatim: call
// increment([5]), expect 5 back; reload (a fresh Instance over the same
// store), call getCount, expect 5 again.
func TestCounterIncrementThenReload(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	inst, err := rt.GetOrLoad(ctx, "counter-1", nil)
	require.NoError(t, err)

	conn, enc, _ := connect(t, inst)

	args, err := enc.EncodeValue([]int{5})
	require.NoError(t, err)
	reply := callAction(t, inst, conn, enc, "increment", args)
	require.Equal(t, protocol.ToClientActionResponse, reply.Tag)

	var got int64
	require.NoError(t, enc.DecodeValue(reply.Output, &got))
	require.Equal(t, int64(5), got)

	require.NoError(t, rt.StopActor(ctx, "counter-1"))

	reloaded, err := rt.GetOrLoad(ctx, "counter-1", nil)
	require.NoError(t, err)
	conn2, enc2, _ := connect(t, reloaded)

	reply2 := callAction(t, reloaded, conn2, enc2, "getCount", nil)
	var got2 int64
	require.NoError(t, enc2.DecodeValue(reply2.Output, &got2))
	require.Equal(t, int64(5), got2)
}

// TestCounterSetCountBroadcastsNewCount is spec.md §8 scenario 2: connection
// A subscribes to "newCount"; invoking setCount([7]) from connection B
// delivers A exactly one Event{name:"newCount", args:[7]}. Unsubscribing A
// and calling setCount([9]) again delivers no further event.
func TestCounterSetCountBroadcastsNewCount(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	inst, err := rt.GetOrLoad(ctx, "counter-2", nil)
	require.NoError(t, err)

	connA, encA, sockA := connect(t, inst)
	connB, encB, _ := connect(t, inst)

	subReply, err := inst.ProcessMessage(ctx, protocol.ToServer{
		Tag:       protocol.ToServerSubscription,
		EventName: "newCount",
		Subscribe: true,
	}, connA, encA)
	require.NoError(t, err)
	require.Nil(t, subReply)

	args, err := encB.EncodeValue([]int{7})
	require.NoError(t, err)
	reply := callAction(t, inst, connB, encB, "setCount", args)
	var got int64
	require.NoError(t, encB.DecodeValue(reply.Output, &got))
	require.Equal(t, int64(7), got)

	require.Len(t, sockA.frames, 1)
	var event protocol.ToClient
	require.NoError(t, json.Unmarshal(sockA.frames[0], &event))
	require.Equal(t, protocol.ToClientEvent, event.Tag)
	require.Equal(t, "newCount", event.EventName)

	var eventArgs []int64
	require.NoError(t, encA.DecodeValue(event.EventArgs, &eventArgs))
	require.Equal(t, []int64{7}, eventArgs)

	_, err = inst.ProcessMessage(ctx, protocol.ToServer{
		Tag:       protocol.ToServerSubscription,
		EventName: "newCount",
		Subscribe: false,
	}, connA, encA)
	require.NoError(t, err)

	args2, err := encB.EncodeValue([]int{9})
	require.NoError(t, err)
	callAction(t, inst, connB, encB, "setCount", args2)

	require.Len(t, sockA.frames, 1, "unsubscribed connection must receive no further events")
}
