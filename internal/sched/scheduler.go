// Package sched implements the generation-staged event scheduler that drives
// a simulation run: it advances a strictly increasing generation counter and
// dispatches registered callbacks per stage in registration order.
package sched

import (
	"context"
	"errors"
	"fmt"
)

// Stage identifies the sub-phase of a generation a callback is tagged with.
type Stage string

const (
	// StageInitialize callbacks run exactly once, before generation 1.
	StageInitialize Stage = "initialize"
	// StageEarly callbacks run at the start of each matching generation,
	// before reproduction.
	StageEarly Stage = "early"
	// StageLate callbacks run at the end of each matching generation,
	// after reproduction.
	StageLate Stage = "late"
)

func (s Stage) valid() bool {
	switch s {
	case StageInitialize, StageEarly, StageLate:
		return true
	default:
		return false
	}
}

// PredicateKind distinguishes the generation-matching variants.
type PredicateKind int

const (
	// KindAlways matches every generation.
	KindAlways PredicateKind = iota
	// KindExact matches a single generation.
	KindExact
	// KindFrom matches the given generation and every one after it.
	KindFrom
)

// Predicate selects the generations a callback applies to.
type Predicate struct {
	Kind       PredicateKind
	Generation int
}

// Always returns a predicate matching every generation.
func Always() Predicate { return Predicate{Kind: KindAlways} }

// Exactly returns a predicate matching only generation n.
func Exactly(n int) Predicate { return Predicate{Kind: KindExact, Generation: n} }

// From returns a predicate matching generation n and onward.
func From(n int) Predicate { return Predicate{Kind: KindFrom, Generation: n} }

func (p Predicate) validate() error {
	switch p.Kind {
	case KindAlways:
		return nil
	case KindExact, KindFrom:
		if p.Generation < 1 {
			return fmt.Errorf("predicate generation must be >= 1, got %d", p.Generation)
		}
		return nil
	default:
		return fmt.Errorf("unknown predicate kind: %d", p.Kind)
	}
}

// Matches reports whether the predicate applies to the given generation.
func (p Predicate) Matches(generation int) bool {
	switch p.Kind {
	case KindAlways:
		return true
	case KindExact:
		return generation == p.Generation
	case KindFrom:
		return generation >= p.Generation
	default:
		return false
	}
}

// Command steers an active run from outside the scheduler goroutine.
type Command int

const (
	CommandPause Command = iota + 1
	CommandContinue
	CommandStop
)

// Tick is the view of the current dispatch handed to a callback body.
type Tick struct {
	Generation int
	Stage      Stage

	sched *Scheduler
}

// Finish signals simulation completion. The scheduler still runs the
// remaining callbacks of the current stage, then returns normally.
func (t Tick) Finish() {
	t.sched.finished = true
}

// Body is one executable callback body. A returned error is fatal to the run.
type Body func(ctx context.Context, tick Tick) error

type callback struct {
	pred  Predicate
	stage Stage
	body  Body
}

// Scheduler owns the registered callbacks and drives generation advancement.
// It is not safe for concurrent use; a run is single-threaded and each body
// runs to completion before the next starts.
type Scheduler struct {
	callbacks []callback
	control   <-chan Command

	running  bool
	finished bool
}

// Config configures a Scheduler.
type Config struct {
	// Control optionally carries pause/continue/stop commands. It is polled
	// at generation boundaries and never blocks the run while unpaused.
	Control <-chan Command
}

func New(cfg Config) *Scheduler {
	return &Scheduler{control: cfg.Control}
}

// Register adds a callback for the given predicate and stage. Callbacks
// registered for the same stage run in registration order. Initialize
// callbacks must be unconditional; they run once, before generation 1.
func (s *Scheduler) Register(pred Predicate, stage Stage, body Body) error {
	if s.running {
		return errors.New("cannot register callbacks while the scheduler is running")
	}
	if body == nil {
		return errors.New("callback body is required")
	}
	if !stage.valid() {
		return fmt.Errorf("unknown stage: %q", stage)
	}
	if err := pred.validate(); err != nil {
		return err
	}
	if stage == StageInitialize && pred.Kind != KindAlways {
		return errors.New("initialize callbacks cannot carry a generation predicate")
	}

	s.callbacks = append(s.callbacks, callback{pred: pred, stage: stage, body: body})
	return nil
}

// Run drives the simulation to completion: initialize callbacks once, then
// per generation the early stage followed by the late stage. It returns nil
// when a body fires the terminal signal (after the current stage's remaining
// callbacks have run) or when a stop command arrives at a generation
// boundary. A body error aborts the run immediately and is returned to the
// caller.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running {
		return errors.New("scheduler is already running")
	}
	s.running = true
	s.finished = false
	defer func() { s.running = false }()

	if err := s.dispatch(ctx, 0, StageInitialize); err != nil {
		return err
	}
	if s.finished {
		return nil
	}

	for generation := 1; ; generation++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop, err := s.pollControl(ctx)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}

		if err := s.dispatch(ctx, generation, StageEarly); err != nil {
			return err
		}
		if s.finished {
			return nil
		}
		if err := s.dispatch(ctx, generation, StageLate); err != nil {
			return err
		}
		if s.finished {
			return nil
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, generation int, stage Stage) error {
	tick := Tick{Generation: generation, Stage: stage, sched: s}
	for _, cb := range s.callbacks {
		if cb.stage != stage {
			continue
		}
		if stage != StageInitialize && !cb.pred.Matches(generation) {
			continue
		}
		if err := cb.body(ctx, tick); err != nil {
			if stage == StageInitialize {
				return fmt.Errorf("initialize callback: %w", err)
			}
			return fmt.Errorf("generation %d %s callback: %w", generation, stage, err)
		}
	}
	return nil
}

// pollControl drains pending control commands. Pause blocks until a
// continue or stop arrives, honoring context cancellation while paused.
func (s *Scheduler) pollControl(ctx context.Context) (stop bool, err error) {
	if s.control == nil {
		return false, nil
	}
	for {
		select {
		case cmd := <-s.control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				stopped, err := s.waitForContinue(ctx)
				if err != nil || stopped {
					return stopped, err
				}
			case CommandContinue:
				// Not paused; nothing to do.
			}
		case <-ctx.Done():
			return false, ctx.Err()
		default:
			return false, nil
		}
	}
}

func (s *Scheduler) waitForContinue(ctx context.Context) (stop bool, err error) {
	for {
		select {
		case cmd := <-s.control:
			switch cmd {
			case CommandContinue:
				return false, nil
			case CommandStop:
				return true, nil
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
