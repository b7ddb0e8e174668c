package engine

import "sync"

/*------------------------------------------------------------------
 *
 * Purpose:	Ingest/diff layer: apply decoded control events to
 *		SystemState under the state mutex, marking dirty iff a
 *		value actually changed.
 *
 * Description:	One Ingest wraps one SystemState and its mutex. The
 *		scheduler and the ingest source (OSC listener, GPIO
 *		sustain source, ...) both call into the same Ingest so
 *		events from either source are serialized identically.
 *
 *------------------------------------------------------------------*/

// Ingest serializes control events into a SystemState and tracks
// whether any applied event has changed state since the last tick.
type Ingest struct {
	mu    sync.Mutex
	state *SystemState
	log   eventLogger
	dirty bool
}

// NewIngest wraps state for serialized event application.
func NewIngest(state *SystemState, log eventLogger) *Ingest {
	return &Ingest{state: state, log: log}
}

// Apply applies a single decoded control event. Malformed events (out
// of range) are logged and dropped; they never stop the pipeline.
func (in *Ingest) Apply(ev Event) {
	in.mu.Lock()
	defer in.mu.Unlock()

	changed := in.apply(ev)
	if changed {
		in.dirty = true
	}
}

// ApplyBatch applies a slice of events in order under a single lock
// acquisition, as happens when multiple OSC messages arrive in one
// bundle: events arriving before a tick boundary are all applied in
// arrival order.
func (in *Ingest) ApplyBatch(evs []Event) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, ev := range evs {
		if in.apply(ev) {
			in.dirty = true
		}
	}
}

// apply mutates state for one event and reports whether anything
// changed. Caller must hold mu.
func (in *Ingest) apply(ev Event) bool {
	switch ev.Kind {
	case EventRankBit:
		return in.applyRankBit(ev)
	case EventRankPriority:
		return in.applyRankPriority(ev)
	case EventRankTonicization:
		return in.applyRankTonicization(ev)
	case EventSustain:
		return in.applySustain(ev)
	case EventKeyCenter:
		return in.applyKeyCenter(ev)
	default:
		in.log.Warnf("ingest: unknown event kind %d, dropping", ev.Kind)

		return false
	}
}

func (in *Ingest) applyRankBit(ev Event) bool {
	r := in.state.Rank(ev.Rank)
	if r == nil || ev.Slot < 0 || ev.Slot > 3 {
		in.log.Warnf("ingest: malformed RankBit(rank=%d, slot=%d), dropping", ev.Rank, ev.Slot)

		return false
	}

	before := r.GreyCode

	value := 0
	if ev.Value != 0 {
		value = 1
	}

	if before[ev.Slot] == value {
		return false
	}

	r.UpdateBit(ev.Slot, value)

	return true
}

func (in *Ingest) applyRankPriority(ev Event) bool {
	r := in.state.Rank(ev.Rank)
	if r == nil {
		in.log.Warnf("ingest: malformed RankPriority(rank=%d), dropping", ev.Rank)

		return false
	}

	if r.Priority == ev.Value {
		return false
	}

	if !r.UpdatePriority(ev.Value) {
		in.log.Warnf("ingest: RankPriority value %d out of range [1,8] for rank %d, dropping", ev.Value, ev.Rank)

		return false
	}

	return true
}

func (in *Ingest) applyRankTonicization(ev Event) bool {
	r := in.state.Rank(ev.Rank)
	if r == nil {
		in.log.Warnf("ingest: malformed RankTonicization(rank=%d), dropping", ev.Rank)

		return false
	}

	if r.Tonicization == ev.Value {
		return false
	}

	if !r.UpdateTonicization(ev.Value) {
		in.log.Warnf("ingest: RankTonicization value %d out of range [1,9] for rank %d, dropping", ev.Value, ev.Rank)

		return false
	}

	return true
}

func (in *Ingest) applySustain(ev Event) bool {
	v := ev.Value != 0
	if in.state.Sustain == v {
		return false
	}

	in.state.Sustain = v

	return true
}

func (in *Ingest) applyKeyCenter(ev Event) bool {
	if ev.Value < 0 || ev.Value > 127 {
		in.log.Warnf("ingest: KeyCenter value %d out of range [0,127], dropping", ev.Value)

		return false
	}

	if in.state.KeyCenter == ev.Value {
		return false
	}

	in.state.KeyCenter = ev.Value

	return true
}

// TakeDirty reports and clears the dirty flag. Called by the scheduler
// at each tick boundary under the same lock used by Apply.
func (in *Ingest) TakeDirty() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	d := in.dirty
	in.dirty = false

	return d
}

// WithState runs fn with the state mutex held, for the scheduler's
// allocate-then-snapshot step.
func (in *Ingest) WithState(fn func(*SystemState)) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fn(in.state)
}
