package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

func TestDispatchUnknownAction(t *testing.T) {
	d := New(nil, time.Second, nil)

	_, err := d.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeActionNotFound, rk.Code)
}

func TestDispatchSuccess(t *testing.T) {
	d := New(map[string]Handler{
		"echo": func(_ context.Context, args []byte) ([]byte, error) {
			return args, nil
		},
	}, time.Second, nil)

	out, err := d.Dispatch(context.Background(), "echo", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

func TestDispatchAppliesTransform(t *testing.T) {
	d := New(map[string]Handler{
		"echo": func(_ context.Context, args []byte) ([]byte, error) {
			return args, nil
		},
	}, time.Second, func(_ context.Context, name string, output []byte) ([]byte, error) {
		require.Equal(t, "echo", name)
		return append(output, '!'), nil
	})

	out, err := d.Dispatch(context.Background(), "echo", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, []byte("hi!"), out)
}

func TestDispatchHandlerError(t *testing.T) {
	wantErr := errors.New("boom")
	d := New(map[string]Handler{
		"fail": func(_ context.Context, _ []byte) ([]byte, error) {
			return nil, wantErr
		},
	}, time.Second, nil)

	_, err := d.Dispatch(context.Background(), "fail", nil)
	require.ErrorIs(t, err, wantErr)
}

func TestDispatchTimesOut(t *testing.T) {
	d := New(map[string]Handler{
		"slow": func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, 10*time.Millisecond, nil)

	_, err := d.Dispatch(context.Background(), "slow", nil)
	require.Error(t, err)
	rk, ok := rkerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rkerrors.CodeActionTimedOut, rk.Code)
}

func TestDispatchHas(t *testing.T) {
	d := New(map[string]Handler{"a": func(context.Context, []byte) ([]byte, error) { return nil, nil }}, time.Second, nil)
	require.True(t, d.Has("a"))
	require.False(t, d.Has("b"))
}
