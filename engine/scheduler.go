package engine

import (
	"context"
	"time"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Tick scheduler: runs the allocator and emitter on a fixed
 *		period, serialized against Ingest so at most one
 *		allocation pass is ever in flight.
 *
 * Description:	Each tick: if the state is dirty or a sustain edge is
 *		pending, run Allocate once under the Ingest lock, then
 *		hand the resulting diff to the change callback. Ticks
 *		that find nothing dirty and no pending edge are skipped
 *		entirely — the allocator never runs on an idle engine.
 *
 *------------------------------------------------------------------*/

// ChangeHandler receives one tick's diff. voiceChanges may be empty
// even when countChanged is true (e.g. the first diff after start or
// a resync while no voice is sounding).
type ChangeHandler func(voiceChanges []VoiceChange, activeCount int, countChanged bool)

// Scheduler drives Allocate/Diff on a fixed tick period.
type Scheduler struct {
	ingest   *Ingest
	emitter  *Emitter
	log      eventLogger
	period   time.Duration
	onChange ChangeHandler
	snapshot *SnapshotWriter

	forceNextTick bool
}

// NewScheduler builds a scheduler that ticks every period, calling
// onChange with the result of each allocation pass.
func NewScheduler(ingest *Ingest, emitter *Emitter, log eventLogger, period time.Duration, onChange ChangeHandler) *Scheduler {
	return &Scheduler{
		ingest:   ingest,
		emitter:  emitter,
		log:      log,
		period:   period,
		onChange: onChange,
	}
}

// SetSnapshotWriter attaches an optional debug snapshot sink. When set,
// every tick that actually runs the allocator also appends one JSONL
// record of the resulting state.
func (sch *Scheduler) SetSnapshotWriter(w *SnapshotWriter) {
	sch.snapshot = w
}

// RequestResync marks the next tick to run unconditionally and to
// force the emitter to report every sounding voice as changed, used by
// the hotplug watcher and the /resync OSC address.
func (sch *Scheduler) RequestResync() {
	sch.forceNextTick = true
	sch.emitter.ForceResync()
}

// Run blocks, ticking every sch.period, until ctx is cancelled.
func (sch *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(sch.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sch.log.Infof("scheduler: stopping")

			return
		case <-ticker.C:
			sch.tick()
		}
	}
}

func (sch *Scheduler) tick() {
	dirty := sch.ingest.TakeDirty()
	force := sch.forceNextTick
	sch.forceNextTick = false

	if !dirty && !force {
		return
	}

	var (
		voiceChanges []VoiceChange
		activeCount  int
		countChanged bool
	)

	sch.ingest.WithState(func(s *SystemState) {
		Allocate(s, sch.log)
		voiceChanges, countChanged = sch.emitter.Diff(s)
		activeCount = sch.emitter.ActiveCount()

		if sch.snapshot != nil {
			if err := sch.snapshot.Write(s, time.Now()); err != nil {
				sch.log.Warnf("scheduler: snapshot write failed: %v", err)
			}
		}
	})

	if sch.onChange != nil {
		sch.onChange(voiceChanges, activeCount, countChanged)
	}
}
