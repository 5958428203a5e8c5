package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/dispatch"
	"github.com/rivet-dev/actor-core/internal/manager"
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

func newTestRouter(t *testing.T, authToken string) (http.Handler, *manager.Gateway) {
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

	directory := manager.NewDirectory(driver)
	runners := manager.NewRunnerRegistry(time.Second, zap.NewNop())
	gw := manager.NewGateway(directory, runners, rt, "self", zap.NewNop())

	router := NewRouter(RouterConfig{
		Gateway:        gw,
		ActorNames:     []string{"echo"},
		ClientEndpoint: "http://localhost:8080",
		AuthToken:      authToken,
		Logger:         zap.NewNop(),
	})
	return router, gw
}

func TestManagerHealthAndBanner(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr2.Code)
	require.Contains(t, rr2.Body.String(), "rivetkit")
}

func TestActorSurfaceHealthReturnsPlainOK(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("x-rivet-target", "echo")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateAcceptsBearerToken(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/metadata", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateActorThenList(t *testing.T) {
	router, _ := newTestRouter(t, "")

	body := strings.NewReader(`{"name":"echo","key":["room-1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/actors", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created["actor_id"])

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/actors?name=echo", nil))
	require.Equal(t, http.StatusOK, rr2.Code)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, created["actor_id"], listed[0]["actor_id"])
}

func TestListRejectsCombinedActorIDsAndName(t *testing.T) {
	router, _ := newTestRouter(t, "")

	body := strings.NewReader(`{"name":"echo","key":["room-1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/actors", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	actorID, _ := created["actor_id"].(string)
	require.NotEmpty(t, actorID)

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/actors?name=echo&actor_ids="+actorID, nil))
	require.Equal(t, http.StatusBadRequest, rr2.Code)
}

func TestGetOrCreateActorIsIdempotent(t *testing.T) {
	router, _ := newTestRouter(t, "")

	mkReq := func() *http.Request {
		return httptest.NewRequest(http.MethodPut, "/actors", strings.NewReader(`{"name":"echo","key":["room-2"]}`))
	}

	rr1 := httptest.NewRecorder()
	router.ServeHTTP(rr1, mkReq())
	require.Equal(t, http.StatusCreated, rr1.Code)
	var first map[string]any
	require.NoError(t, json.Unmarshal(rr1.Body.Bytes(), &first))

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, mkReq())
	require.Equal(t, http.StatusOK, rr2.Code)
	var second map[string]any
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &second))

	require.Equal(t, first["actor_id"], second["actor_id"])
}

func TestRunnerHeartbeatUpdatesRegistry(t *testing.T) {
	router, gw := newTestRouter(t, "")

	body := strings.NewReader(`{"runnerId":"remote","advertiseAddr":"http://remote:9090","actorIds":["actor-1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/runners/heartbeat", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	addr, isProxy := gw.Route("actor-1")
	require.True(t, isProxy)
	require.Equal(t, "http://remote:9090", addr)
}
