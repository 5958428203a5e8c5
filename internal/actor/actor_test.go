package actor

import (
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/dispatch"
	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/scheduler"
)

// newTestScheduler builds a Scheduler that fires into whatever Instance is
// later assigned to *target — tests construct the Scheduler before the
// Instance it serves exists, so the binding happens through this pointer.
func newTestScheduler(t *testing.T, target **Instance) *scheduler.Scheduler {
	t.Helper()
	sched, err := scheduler.New(zap.NewNop(), func(actorID string) {
		if *target != nil {
			(*target).OnAlarm(context.Background())
		}
	})
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Stop() })
	return sched
}

func testStore() *persist.Store {
	return persist.NewStore(persist.NewMemoryDriver())
}

func fastTimeouts() Timeouts {
	t := DefaultTimeouts()
	t.Sleep = 50 * time.Millisecond
	t.ConnectionLivenessInterval = time.Hour
	return t
}

func echoDef() *Definition {
	return &Definition{
		Name: "echo",
		Actions: map[string]dispatch.Handler{
			"echo": func(_ context.Context, args []byte) ([]byte, error) {
				return args, nil
			},
		},
	}
}

func newTestInstance(t *testing.T, def *Definition, store *persist.Store) *Instance {
	t.Helper()
	var inst *Instance
	sched := newTestScheduler(t, &inst)
	inst = New("actor-1", def, fastTimeouts(), store, sched, zap.NewNop())
	require.NoError(t, inst.Start(context.Background(), nil))
	return inst
}

func TestInstanceCreateThenResume(t *testing.T) {
	store := testStore()
	def := echoDef()
	def.Hooks.CreateState = func(_ context.Context, _ []byte) ([]byte, error) {
		return cbor.Marshal(map[string]int{"count": 0})
	}

	inst := newTestInstance(t, def, store)

	var state map[string]int
	require.NoError(t, cbor.Unmarshal(inst.State(), &state))
	require.Equal(t, 0, state["count"])

	require.NoError(t, inst.MutateState(func(cur []byte) []byte {
		var s map[string]int
		_ = cbor.Unmarshal(cur, &s)
		s["count"] = 5
		out, _ := cbor.Marshal(s)
		return out
	}))

	require.NoError(t, inst.Stop(context.Background()))

	var resumed *Instance
	sched := newTestScheduler(t, &resumed)
	resumed = New("actor-1", def, fastTimeouts(), store, sched, zap.NewNop())
	require.NoError(t, resumed.Start(context.Background(), nil))

	var resumedState map[string]int
	require.NoError(t, cbor.Unmarshal(resumed.State(), &resumedState))
	require.Equal(t, 5, resumedState["count"])
	require.NoError(t, resumed.Stop(context.Background()))
}

func TestInstanceDispatcherRunsAction(t *testing.T) {
	store := testStore()
	inst := newTestInstance(t, echoDef(), store)
	defer inst.Stop(context.Background())

	require.True(t, inst.dispatcher.Has("echo"))

	canonical, err := cbor.Marshal("hi")
	require.NoError(t, err)
	out, err := inst.dispatcher.Dispatch(context.Background(), "echo", canonical)
	require.NoError(t, err)

	var got string
	require.NoError(t, cbor.Unmarshal(out, &got))
	require.Equal(t, "hi", got)
}

func TestScheduleEventArmsAndFires(t *testing.T) {
	store := testStore()
	def := echoDef()

	fired := make(chan struct{}, 1)
	def.Actions["tick"] = func(_ context.Context, _ []byte) ([]byte, error) {
		fired <- struct{}{}
		return nil, nil
	}

	inst := newTestInstance(t, def, store)
	defer inst.Stop(context.Background())

	_, err := inst.ScheduleEvent(context.Background(), time.Now().Add(10*time.Millisecond), "tick", nil)
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled event did not fire in time")
	}
}

func TestSleepEvictsAndClearsSleepTimer(t *testing.T) {
	store := testStore()
	var inst *Instance
	sched := newTestScheduler(t, &inst)
	inst = New("actor-1", echoDef(), fastTimeouts(), store, sched, zap.NewNop())

	evicted := make(chan struct{})
	inst.SetOnEvicted(func() { close(evicted) })

	require.NoError(t, inst.Start(context.Background(), nil))

	select {
	case <-evicted:
	case <-time.After(2 * time.Second):
		t.Fatal("idle actor did not self-sleep in time")
	}
	require.Nil(t, inst.sleepTimer)
}

func TestCanSleepFalseWithOpenRawWebSocket(t *testing.T) {
	store := testStore()
	def := echoDef()
	inst := newTestInstance(t, def, store)
	defer inst.Stop(context.Background())

	inst.exec(func() {
		inst.rawSockets = 1
	})
	require.False(t, inst.canSleep())
}
