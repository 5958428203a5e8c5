package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
)

// QueryKind discriminates the four query variants of SPEC_FULL.md §4.9.
type QueryKind string

const (
	QueryGetForID         QueryKind = "get_for_id"
	QueryGetForKey        QueryKind = "get_for_key"
	QueryGetOrCreateForKey QueryKind = "get_or_create_for_key"
	QueryCreate           QueryKind = "create"
)

// Query is one ManagerGateway lookup/create request.
type Query struct {
	Kind    QueryKind
	Name    string
	ActorID string   // getForId
	Key     []string // getForKey, getOrCreateForKey, create
	Input   []byte   // getOrCreateForKey, create
	Region  string   // getOrCreateForKey, create; accepted but not used, see Resolve
}

// Resolved is the outcome of resolving a Query to a concrete actor.
type Resolved struct {
	ActorID string
	Name    string
	Created bool
}

// Gateway resolves queries to actor ids and routes the resulting work
// either to this process's resident actor.Runtime (inline) or to a
// remote runner (proxy), per SPEC_FULL.md §4.9.
type Gateway struct {
	directory *Directory
	runners   *RunnerRegistry
	runtime   *actor.Runtime

	selfRunnerID string
	log          *zap.Logger
}

func NewGateway(directory *Directory, runners *RunnerRegistry, runtime *actor.Runtime, selfRunnerID string, log *zap.Logger) *Gateway {
	return &Gateway{
		directory:    directory,
		runners:      runners,
		runtime:      runtime,
		selfRunnerID: selfRunnerID,
		log:          log.Named("manager.gateway"),
	}
}

// Resolve dispatches q to the matching Directory operation.
//
// region is accepted on create paths but neither stored nor consulted:
// with a single-region reference deployment every query resolves to the
// local runner — the field exists so a real multi-region ManagerDriver
// has somewhere to plug in.
func (g *Gateway) Resolve(ctx context.Context, q Query) (Resolved, error) {
	switch q.Kind {
	case QueryGetForID:
		actorID, err := g.directory.GetForID(ctx, q.Name, q.ActorID)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ActorID: actorID, Name: q.Name}, nil

	case QueryGetForKey:
		actorID, err := g.directory.GetForKey(ctx, q.Name, q.Key)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ActorID: actorID, Name: q.Name}, nil

	case QueryGetOrCreateForKey:
		actorID, created, err := g.directory.GetOrCreateForKey(ctx, q.Name, q.Key)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ActorID: actorID, Name: q.Name, Created: created}, nil

	case QueryCreate:
		actorID, err := g.directory.Create(ctx, q.Name, q.Key)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ActorID: actorID, Name: q.Name, Created: true}, nil

	default:
		return Resolved{}, fmt.Errorf("manager: unknown query kind %q", q.Kind)
	}
}

// List resolves the GET /actors listing filters against the directory.
func (g *Gateway) List(ctx context.Context, name string, key []string, actorIDs []string) ([]ActorSummary, error) {
	return g.directory.List(ctx, name, key, actorIDs)
}

// Route decides whether actorID should be served inline by this process's
// Runtime or forwarded to a remote runner, consulting the RunnerRegistry
// for a heartbeating runner other than this one that has claimed it.
func (g *Gateway) Route(actorID string) (proxyAddr string, isProxy bool) {
	addr, ok := g.runners.OwnerOf(actorID, g.selfRunnerID)
	return addr, ok
}

// LocalInstance resolves actorID to a resident actor.Instance on this
// process's Runtime, creating/resuming it from storage if it is not
// already loaded. input is only consulted the first time the actor's
// state is created.
func (g *Gateway) LocalInstance(ctx context.Context, actorID string, input []byte) (*actor.Instance, error) {
	return g.runtime.GetOrLoad(ctx, actorID, input)
}

// Runners exposes the runner registry so the HTTP layer can wire the
// heartbeat endpoint.
func (g *Gateway) Runners() *RunnerRegistry { return g.runners }
