// Package scheduler maintains the ordered queue of an actor's future
// events and arms a precise in-process wakeup for the earliest one
// (SPEC_FULL.md §4.6). The durable counterpart — the storage driver's
// per-actor alarm timestamp, which survives the actor unloading — lives
// in internal/persist; this package is what fires that alarm on time
// while the actor is resident in memory.
//
// Grounded on the teacher's gocron.Scheduler wrapper (internal/scheduler
// in the original arkeep server): one shared gocron.Scheduler, jobs
// tagged by an entity id, RemoveByTags+NewJob to reschedule — generalized
// here from per-policy cron jobs to per-actor one-shot alarms.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/persist"
)

// InsertSorted inserts ev into events at the position that keeps the
// slice sorted by Timestamp ascending, stable w.r.t. insertion order for
// equal timestamps (SPEC_FULL.md §4.6 step 1). becameEarliest reports
// whether ev landed at index 0 — the caller must (re)arm the alarm in
// that case.
func InsertSorted(events []persist.ScheduledEvent, ev persist.ScheduledEvent) (out []persist.ScheduledEvent, becameEarliest bool) {
	idx := sort.Search(len(events), func(i int) bool {
		return events[i].TimestampMS > ev.TimestampMS
	})
	out = make([]persist.ScheduledEvent, 0, len(events)+1)
	out = append(out, events[:idx]...)
	out = append(out, ev)
	out = append(out, events[idx:]...)
	return out, idx == 0
}

// SplitDue separates the events with Timestamp <= now off the front of
// the (assumed sorted) events slice, returning them in timestamp order
// alongside the remaining slice (SPEC_FULL.md §4.6 steps 2-3).
func SplitDue(events []persist.ScheduledEvent, now time.Time) (due, remaining []persist.ScheduledEvent) {
	nowMS := now.UnixMilli()
	idx := 0
	for idx < len(events) && events[idx].TimestampMS <= nowMS {
		idx++
	}
	return events[:idx], events[idx:]
}

// FireFunc is invoked when an actor's armed alarm goes off. actorID
// identifies which actor; the implementation is responsible for loading
// the events due and invoking their handlers (ActorInstance.onAlarm).
type FireFunc func(actorID string)

// Scheduler owns one shared gocron.Scheduler and arms a single one-time
// job per actor, tagged by actorId so it can be replaced wholesale on
// every re-arm, mirroring the teacher's AddPolicy/RemoveByTags/UpdatePolicy
// shape applied to one-shot jobs instead of recurring cron schedules.
type Scheduler struct {
	cron gocron.Scheduler
	fire FireFunc
	log  *zap.Logger
}

// New creates a Scheduler. Call Start to begin processing armed jobs.
func New(log *zap.Logger, fire FireFunc) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{cron: cron, fire: fire, log: log.Named("scheduler")}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	return nil
}

// Arm (re)schedules actorID's in-process wakeup for at, replacing any
// job already armed for this actor. A past or immediate at still fires
// promptly — gocron runs a one-time job as soon as its start time has
// passed.
func (s *Scheduler) Arm(actorID string, at time.Time) error {
	s.cron.RemoveByTags(actorID)

	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func(id string) {
			s.fire(id)
		}, actorID),
		gocron.WithTags(actorID),
	)
	if err != nil {
		return fmt.Errorf("scheduler: failed to arm alarm for actor %s: %w", actorID, err)
	}
	s.log.Debug("alarm armed", zap.String("actor_id", actorID), zap.Time("at", at))
	return nil
}

// Disarm removes any job armed for actorID, e.g. when its scheduled-event
// queue empties or the actor is stopping.
func (s *Scheduler) Disarm(actorID string) {
	s.cron.RemoveByTags(actorID)
	s.log.Debug("alarm disarmed", zap.String("actor_id", actorID))
}
