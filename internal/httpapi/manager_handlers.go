package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/manager"
	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

// runtimeName and version identify this process on the Manager surface's
// /health and /metadata endpoints.
const (
	runtimeName = "rivetkit"
	version     = "0.1.0"
)

const bannerText = "rivetkit actor runtime\n"

// ManagerHandler serves the Manager HTTP surface (SPEC_FULL.md §6): actor
// directory lookups/creation and runner bookkeeping, all plain JSON.
// Grounded on the teacher's internal/api handler structs (one struct per
// surface, constructed with its dependencies and a *zap.Logger).
type ManagerHandler struct {
	Gateway        *manager.Gateway
	ActorNames     []string
	ClientEndpoint string
	Log            *zap.Logger
}

func NewManagerHandler(gw *manager.Gateway, actorNames []string, clientEndpoint string, log *zap.Logger) *ManagerHandler {
	return &ManagerHandler{
		Gateway:        gw,
		ActorNames:     actorNames,
		ClientEndpoint: clientEndpoint,
		Log:            log.Named("httpapi.manager"),
	}
}

func (h *ManagerHandler) Banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(bannerText))
}

type healthResponse struct {
	Status  string `json:"status"`
	Runtime string `json:"runtime"`
	Version string `json:"version"`
}

func (h *ManagerHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Runtime: runtimeName, Version: version})
}

type runnerKind struct {
	Normal     *struct{} `json:"normal,omitempty"`
	Serverless *struct{} `json:"serverless,omitempty"`
}

type runnerMetadata struct {
	Kind runnerKind `json:"kind"`
}

type metadataResponse struct {
	Runtime        string         `json:"runtime"`
	Version        string         `json:"version"`
	Runner         runnerMetadata `json:"runner"`
	ActorNames     []string       `json:"actorNames"`
	ClientEndpoint string         `json:"clientEndpoint,omitempty"`
}

// Metadata reports this runtime's build identity and the actor kinds it
// knows how to construct. This reference core only ever runs in "normal"
// mode — see Start.
func (h *ManagerHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metadataResponse{
		Runtime:        runtimeName,
		Version:        version,
		Runner:         runnerMetadata{Kind: runnerKind{Normal: &struct{}{}}},
		ActorNames:     h.ActorNames,
		ClientEndpoint: h.ClientEndpoint,
	})
}

// Start would spawn a serverless worker process bound to the
// x-rivet-endpoint/x-rivet-token/x-rivet-total-slots/x-rivet-runner-name/
// x-rivet-namespace-id headers. This core always runs in normal mode, so
// there is no supervisor to spawn one against.
func (h *ManagerHandler) Start(w http.ResponseWriter, r *http.Request) {
	writeManagerErr(w, rkerrors.New(rkerrors.GroupHandler, rkerrors.CodeHandlerFetchNotDefined,
		"GET /start is not supported in normal mode"))
}

type actorResponse struct {
	ActorID string   `json:"actor_id"`
	Name    string   `json:"name"`
	Key     []string `json:"key,omitempty"`
	Created bool     `json:"created,omitempty"`
}

// List serves GET /actors?name=&actor_ids=&key=.
func (h *ManagerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	key := q["key"]

	var actorIDs []string
	if raw := q.Get("actor_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				actorIDs = append(actorIDs, id)
			}
		}
	}

	summaries, err := h.Gateway.List(r.Context(), name, key, actorIDs)
	if err != nil {
		writeManagerErr(w, err)
		return
	}

	out := make([]actorResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, actorResponse{ActorID: s.ActorID, Name: s.Name, Key: s.Key})
	}
	writeJSON(w, http.StatusOK, out)
}

type createActorRequest struct {
	Name  string          `json:"name"`
	Key   []string        `json:"key,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// GetOrCreate serves PUT /actors.
func (h *ManagerHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	h.resolveAndRespond(w, r, manager.QueryGetOrCreateForKey)
}

// Create serves POST /actors.
func (h *ManagerHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.resolveAndRespond(w, r, manager.QueryCreate)
}

func (h *ManagerHandler) resolveAndRespond(w http.ResponseWriter, r *http.Request, kind manager.QueryKind) {
	var req createActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "malformed request body"))
		return
	}
	if req.Name == "" {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "name is required"))
		return
	}

	input, err := jsonToCanonicalCBOR(req.Input)
	if err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupEncoding, rkerrors.CodeEncodingInvalid, "malformed input"))
		return
	}

	ctx := r.Context()
	resolved, err := h.Gateway.Resolve(ctx, manager.Query{Kind: kind, Name: req.Name, Key: req.Key, Input: input})
	if err != nil {
		writeManagerErr(w, err)
		return
	}

	// Realize the actor's state now rather than waiting for its first
	// connection, so Input is actually consumed by this request.
	if _, err := h.Gateway.LocalInstance(ctx, resolved.ActorID, input); err != nil {
		writeManagerErr(w, err)
		return
	}

	status := http.StatusOK
	if resolved.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, actorResponse{ActorID: resolved.ActorID, Name: resolved.Name, Key: req.Key, Created: resolved.Created})
}

type heartbeatRequest struct {
	RunnerID      string   `json:"runnerId"`
	AdvertiseAddr string   `json:"advertiseAddr"`
	ActorIDs      []string `json:"actorIds"`
}

// RunnerHeartbeat serves POST /runners/heartbeat (SPEC_FULL.md §3.2).
func (h *ManagerHandler) RunnerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "malformed request body"))
		return
	}
	if req.RunnerID == "" {
		writeManagerErr(w, rkerrors.New(rkerrors.GroupConnection, rkerrors.CodeParamsInvalid, "runnerId is required"))
		return
	}
	h.Gateway.Runners().Heartbeat(req.RunnerID, req.AdvertiseAddr, req.ActorIDs)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// jsonToCanonicalCBOR re-encodes a JSON value (as submitted on the
// all-JSON Manager surface) into the canonical CBOR representation every
// actor's CreateState hook is written against, the same boundary
// ProcessMessage's toCanonical/fromCanonical enforce for action args.
func jsonToCanonicalCBOR(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return cbor.Marshal(generic)
}
