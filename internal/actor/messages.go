package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/codec"
	"github.com/rivet-dev/actor-core/internal/persist"
	"github.com/rivet-dev/actor-core/internal/protocol"
	"github.com/rivet-dev/actor-core/internal/registry"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
	"github.com/rivet-dev/actor-core/internal/scheduler"
)

// ProcessMessage dispatches one inbound ToServer frame (SPEC_FULL.md §4.8).
// ActionRequest is routed to the ActionDispatcher; SubscriptionRequest
// mutates the connection's subscription set and persists immediately;
// anything else is a malformed-message error. A nil *protocol.ToClient with
// a nil error means nothing is sent back (subscription acks are silent).
func (a *Instance) ProcessMessage(ctx context.Context, msg protocol.ToServer, conn *registry.Connection, enc codec.Codec) (*protocol.ToClient, error) {
	var reply *protocol.ToClient
	var outErr error

	a.exec(func() {
		switch msg.Tag {
		case protocol.ToServerAction:
			reply = a.handleAction(ctx, msg, enc)
		case protocol.ToServerSubscription:
			if err := a.registry.SetSubscription(ctx, conn, msg.EventName, msg.Subscribe); err != nil {
				outErr = err
			}
		default:
			outErr = rkerrors.MessageMalformed(fmt.Sprintf("unknown message tag %q", msg.Tag))
		}
		a.flushIfDirty(ctx)
	})

	return reply, outErr
}

// handleAction runs inside the event loop. It transcodes args from the
// connection's negotiated encoding into the canonical CBOR representation
// every action handler sees, dispatches, then transcodes the result back.
func (a *Instance) handleAction(ctx context.Context, msg protocol.ToServer, enc codec.Codec) *protocol.ToClient {
	actionID := msg.ActionID

	canonicalArgs, err := toCanonical(enc, msg.Args)
	if err != nil {
		return errorResponse(a.def.ExposeInternalError, rkerrors.MessageMalformed("malformed action args"), &actionID)
	}

	output, err := a.dispatcher.Dispatch(withInstance(ctx, a), msg.ActionName, canonicalArgs)
	if err != nil {
		return errorResponse(a.def.ExposeInternalError, err, &actionID)
	}

	wireOutput, err := fromCanonical(enc, output)
	if err != nil {
		return errorResponse(a.def.ExposeInternalError, rkerrors.Internal("failed to encode action output"), &actionID)
	}

	resp := protocol.NewActionResponse(actionID, wireOutput)
	return &resp
}

// toCanonical decodes data (encoded per enc's rules) into a generic value
// and re-encodes it as canonical CBOR, the representation every registered
// action handler is written against regardless of which encoding a given
// connection negotiated.
func toCanonical(enc codec.Codec, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return cbor.Marshal(nil)
	}
	var generic any
	if err := enc.DecodeValue(data, &generic); err != nil {
		return nil, err
	}
	return cbor.Marshal(generic)
}

// fromCanonical reverses toCanonical: canonical CBOR bytes back into the
// connection's negotiated wire encoding.
func fromCanonical(enc codec.Codec, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return enc.EncodeValue(nil)
	}
	var generic any
	if err := cbor.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return enc.EncodeValue(generic)
}

func errorResponse(exposeInternal bool, err error, actionID *uint64) *protocol.ToClient {
	rk, ok := rkerrors.As(err)
	if !ok {
		rk = rkerrors.Internal(err.Error())
	}
	group, code, message, metadata := rk.Wire(exposeInternal)
	resp := protocol.NewError(string(group), string(code), message, metadata, actionID)
	return &resp
}

// BroadcastEvent fans an event out to every connection subscribed to name,
// serializing the Event frame at most once per negotiated encoding
// (SPEC_FULL.md §4.1) and reusing it for every subscriber on that encoding.
// encodingOf resolves a connection to the Codec its socket negotiated.
func (a *Instance) BroadcastEvent(ctx context.Context, name string, canonicalArgs []byte, encodingOf func(*registry.Connection) codec.Codec, send func(*registry.Connection, []byte) error) {
	subs := a.registry.Subscribers(name)
	if len(subs) == 0 {
		return
	}

	frames := make(map[string][]byte, 3)
	var genericArgs any
	if len(canonicalArgs) > 0 {
		_ = cbor.Unmarshal(canonicalArgs, &genericArgs)
	}

	for _, conn := range subs {
		enc := encodingOf(conn)
		key := string(enc.Encoding())
		frame, ok := frames[key]
		if !ok {
			wireArgs, err := enc.EncodeValue(genericArgs)
			if err != nil {
				a.log.Warn("failed to encode event args", zap.String("event", name), zap.Error(err))
				continue
			}
			frame, err = enc.EncodeToClient(protocol.NewEvent(name, wireArgs))
			if err != nil {
				a.log.Warn("failed to encode event envelope", zap.String("event", name), zap.Error(err))
				continue
			}
			frames[key] = frame
		}
		if err := send(conn, frame); err != nil {
			a.log.Debug("event send failed", zap.String("conn_id", conn.ConnID), zap.Error(err))
		}
	}
}

// Broadcast is the BroadcastEvent entry point action handlers reach via
// InstanceFromContext: it resolves each subscriber's Codec from the
// encoding its connection negotiated at connect time (registry.Connection's
// Encoding field) and delivers over its currently bound Socket, skipping
// any connection that is mid-reconnect (no socket bound yet).
func (a *Instance) Broadcast(ctx context.Context, name string, canonicalArgs []byte) {
	a.BroadcastEvent(ctx, name, canonicalArgs, connCodec, func(conn *registry.Connection, frame []byte) error {
		sock := conn.Socket()
		if sock == nil {
			return nil
		}
		return sock.Send(ctx, frame, codec.IsBinary(connCodec(conn)))
	})
}

// connCodec resolves the Codec a connection negotiated, falling back to
// JSON when Encoding is empty or unknown, as for a connection restored
// from persistence (PersistedConn does not store the encoding) before a
// reconnect rebinds it.
func connCodec(conn *registry.Connection) codec.Codec {
	enc, err := codec.ForEncoding(conn.Encoding)
	if err != nil {
		enc, _ = codec.ForEncoding(protocol.EncodingJSON)
	}
	return enc
}

// ScheduleEvent inserts a future action invocation into the actor's sorted
// event queue and (re)arms the alarm if it became the new earliest
// (SPEC_FULL.md §4.6 step 1-2).
func (a *Instance) ScheduleEvent(ctx context.Context, at time.Time, actionName string, canonicalArgs []byte) (string, error) {
	var eventID string
	var outErr error
	a.exec(func() {
		eventID = uuid.NewString()
		ev := persist.ScheduledEvent{
			EventID:     eventID,
			TimestampMS: at.UnixMilli(),
			ActionName:  actionName,
			Args:        canonicalArgs,
		}
		events, earliest := scheduler.InsertSorted(a.events, ev)
		a.events = events
		if earliest {
			a.armAlarm(ctx, ev.TimestampMS)
		}
		if err := a.persistNow(ctx); err != nil {
			outErr = err
		}
	})
	return eventID, outErr
}

// OnAlarm is invoked by the shared Scheduler when this actor's armed job
// fires (SPEC_FULL.md §4.6 steps 2-5). It is idempotent: firing with
// nothing yet due simply rearms for the new earliest event.
func (a *Instance) OnAlarm(ctx context.Context) {
	a.exec(func() {
		now := time.Now()
		due, remaining := scheduler.SplitDue(a.events, now)
		if len(due) == 0 {
			if len(remaining) > 0 {
				a.armAlarm(ctx, remaining[0].TimestampMS)
			} else {
				a.disarmAlarm(ctx)
			}
			return
		}

		a.events = remaining
		if err := a.persistNow(ctx); err != nil {
			a.log.Warn("failed to persist after alarm splice", zap.Error(err))
		}
		if len(remaining) > 0 {
			a.armAlarm(ctx, remaining[0].TimestampMS)
		} else {
			a.disarmAlarm(ctx)
		}

		for _, ev := range due {
			handler, ok := a.def.Actions[ev.ActionName]
			if !ok {
				a.log.Warn("scheduled event references unknown action", zap.String("action", ev.ActionName))
				continue
			}
			actionCtx, cancel := context.WithTimeout(ctx, a.timeouts.Action)
			if _, err := handler(withInstance(actionCtx, a), ev.Args); err != nil {
				a.log.Warn("scheduled event handler failed", zap.String("action", ev.ActionName), zap.Error(err))
			}
			cancel()
		}
		a.flushIfDirty(ctx)
		a.resetSleepTimer()
	})
}
