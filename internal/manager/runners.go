package manager

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRunnerHeartbeatTimeout is the interval after which a runner that
// has stopped heartbeating is dropped from the registry (SPEC_FULL.md
// §3.2). Losing a runner only loses routing freshness — the storage
// driver remains authoritative for which actors exist.
const DefaultRunnerHeartbeatTimeout = 15 * time.Second

// runnerEntry is one registered runner's last-known heartbeat.
type runnerEntry struct {
	advertiseAddr string
	lastSeen      time.Time
	actorIDs      map[string]struct{}
}

// RunnerRegistry is the in-memory, non-persistent directory of runner
// processes available to proxy actor traffic to, grounded on the teacher's
// agentmanager.Manager (RWMutex-guarded map, register/deregister/lookup
// shape) renamed from "connected agent" to "heartbeating runner".
type RunnerRegistry struct {
	mu               sync.RWMutex
	runners          map[string]*runnerEntry
	heartbeatTimeout time.Duration
	log              *zap.Logger
}

func NewRunnerRegistry(heartbeatTimeout time.Duration, log *zap.Logger) *RunnerRegistry {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultRunnerHeartbeatTimeout
	}
	return &RunnerRegistry{
		runners:          make(map[string]*runnerEntry),
		heartbeatTimeout: heartbeatTimeout,
		log:              log.Named("manager.runners"),
	}
}

// Heartbeat records (or refreshes) a runner's advertised address and the
// actor ids it currently hosts, per POST /runners/heartbeat (SPEC_FULL.md
// §3.2).
func (r *RunnerRegistry) Heartbeat(runnerID, advertiseAddr string, actorIDs []string) {
	ids := make(map[string]struct{}, len(actorIDs))
	for _, id := range actorIDs {
		ids[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[runnerID] = &runnerEntry{
		advertiseAddr: advertiseAddr,
		lastSeen:      time.Now(),
		actorIDs:      ids,
	}
}

// OwnerOf returns the advertiseAddr of a runner other than selfRunnerID
// that has most recently claimed actorID, if any. Used by the gateway to
// decide inline vs proxy routing.
func (r *RunnerRegistry) OwnerOf(actorID, selfRunnerID string) (advertiseAddr string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest time.Time
	for runnerID, entry := range r.runners {
		if runnerID == selfRunnerID {
			continue
		}
		if _, hosted := entry.actorIDs[actorID]; hosted && (!ok || entry.lastSeen.After(latest)) {
			advertiseAddr, ok, latest = entry.advertiseAddr, true, entry.lastSeen
		}
	}
	return advertiseAddr, ok
}

// Sweep drops any runner whose last heartbeat is older than the configured
// timeout. SweepLoop runs it on an interval.
func (r *RunnerRegistry) Sweep() {
	cutoff := time.Now().Add(-r.heartbeatTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.runners {
		if entry.lastSeen.Before(cutoff) {
			delete(r.runners, id)
			r.log.Info("dropped stale runner", zap.String("runner_id", id))
		}
	}
}

// SweepLoop runs Sweep on a fixed interval until stop is closed.
func (r *RunnerRegistry) SweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-stop:
			return
		}
	}
}
