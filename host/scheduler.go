package host

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wasmhive/hive/errors"
)

// TickOutcome records one instance's result for a single schedule pass.
type TickOutcome struct {
	Err    error
	Module string
	State  State
}

// TickReport aggregates per-instance outcomes of one Run call. The
// Outcomes slice is reused across ticks: it is valid until the next Run.
type TickReport struct {
	Outcomes []TickOutcome
	Tick     uint64
}

// Scheduler drives the cooperative tick loop. Instances run one at a time
// in load order (or by explicit priority); a trap isolates the offending
// instance without touching the others or the host process.
type Scheduler struct {
	log       *zap.Logger
	instances []*Instance
	outcomes  []TickOutcome
	tick      uint64
	mu        sync.Mutex
}

func newScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log}
}

func (s *Scheduler) add(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, inst)
	s.resort()
}

func (s *Scheduler) remove(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.instances {
		if cur == inst {
			s.instances = append(s.instances[:i], s.instances[i+1:]...)
			return
		}
	}
}

// resort keeps schedule order stable: priority first (lower runs earlier),
// load order among equals. Caller holds s.mu.
func (s *Scheduler) resort() {
	sort.SliceStable(s.instances, func(i, j int) bool {
		a, b := s.instances[i], s.instances[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.loadSeq < b.loadSeq
	})
}

// SetPriority declares an explicit scheduling priority for a loaded
// instance; lower values tick earlier.
func (s *Scheduler) SetPriority(inst *Instance, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst.priority = priority
	s.resort()
}

// Run invokes update on every running instance once, in schedule order. A
// trapped instance is marked, excluded from future schedules, and the pass
// continues with the next instance. The report's Outcomes buffer is reused
// across calls.
func (s *Scheduler) Run(ctx context.Context) TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	s.outcomes = s.outcomes[:0]

	for _, inst := range s.instances {
		if inst.state != StateRunning {
			continue
		}

		_, err := inst.update.Call(ctx, s.tick)
		if err != nil {
			inst.trapErr = errors.Trap(inst.name, err)
			inst.state = StateTrapped
			s.log.Warn("module trapped",
				zap.String("module", inst.name),
				zap.Uint64("tick", s.tick),
				zap.Error(err))
			s.outcomes = append(s.outcomes, TickOutcome{
				Module: inst.name,
				State:  StateTrapped,
				Err:    inst.trapErr,
			})
			continue
		}

		s.outcomes = append(s.outcomes, TickOutcome{
			Module: inst.name,
			State:  StateRunning,
		})
	}

	return TickReport{Tick: s.tick, Outcomes: s.outcomes}
}

// Tick returns the number of completed schedule passes.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Instances returns a snapshot of the schedule order.
func (s *Scheduler) Instances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instance, len(s.instances))
	copy(out, s.instances)
	return out
}
