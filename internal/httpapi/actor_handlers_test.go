package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/rivet-dev/actor-core/internal/codec"
	"github.com/rivet-dev/actor-core/internal/protocol"
)

func createEchoActor(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actors", strings.NewReader(`{"name":"echo","key":["room-1"]}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created struct {
		ActorID string `json:"actor_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	return created.ActorID
}

func TestActionCallsEchoAction(t *testing.T) {
	router, _ := newTestRouter(t, "")
	actorID := createEchoActor(t, router)

	enc, err := codec.ForEncoding(protocol.EncodingJSON)
	require.NoError(t, err)

	canonicalArgs, err := cbor.Marshal("hello")
	require.NoError(t, err)
	body, err := enc.EncodeValue(protocol.HTTPActionRequest{Args: canonicalArgs})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/action/echo", bytes.NewReader(body))
	req.Header.Set("x-rivet-target", "echo")
	req.Header.Set("x-rivet-actor", actorID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp protocol.HTTPActionResponse
	require.NoError(t, enc.DecodeValue(rr.Body.Bytes(), &resp))

	var got string
	require.NoError(t, cbor.Unmarshal(resp.Output, &got))
	require.Equal(t, "hello", got)
}

func TestActionUnknownActorFails(t *testing.T) {
	router, _ := newTestRouter(t, "")

	enc, err := codec.ForEncoding(protocol.EncodingJSON)
	require.NoError(t, err)
	body, err := enc.EncodeValue(protocol.HTTPActionRequest{Args: nil})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/action/echo", bytes.NewReader(body))
	req.Header.Set("x-rivet-target", "echo")
	req.Header.Set("x-rivet-actor", "no-such-actor")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestActorQueryHeaderGetForID(t *testing.T) {
	router, _ := newTestRouter(t, "")
	actorID := createEchoActor(t, router)

	enc, err := codec.ForEncoding(protocol.EncodingJSON)
	require.NoError(t, err)
	canonicalArgs, err := cbor.Marshal("via-query")
	require.NoError(t, err)
	body, err := enc.EncodeValue(protocol.HTTPActionRequest{Args: canonicalArgs})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/action/echo", bytes.NewReader(body))
	req.Header.Set("x-rivet-actor-query", `{"getForId":{"name":"echo","actorId":"`+actorID+`"}}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestConnectionsMessageRejectsUnknownConn(t *testing.T) {
	router, _ := newTestRouter(t, "")
	actorID := createEchoActor(t, router)

	req := httptest.NewRequest(http.MethodPost, "/connections/message", bytes.NewReader(nil))
	req.Header.Set("x-rivet-target", "echo")
	req.Header.Set("x-rivet-actor", actorID)
	req.Header.Set("x-rivet-conn", "no-such-conn")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRawHTTPWithoutFetchHookFails(t *testing.T) {
	router, _ := newTestRouter(t, "")
	actorID := createEchoActor(t, router)

	req := httptest.NewRequest(http.MethodGet, "/raw/http/widgets", nil)
	req.Header.Set("x-rivet-target", "echo")
	req.Header.Set("x-rivet-actor", actorID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.NotEqual(t, http.StatusOK, rr.Code)
}
