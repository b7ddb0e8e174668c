package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Minimal-delta change emitter: diffs the allocator's
 *		output against the last emitted state and reports only
 *		what actually changed.
 *
 * Description:	One Emitter is owned by the scheduler and called once
 *		per tick after Allocate. It never mutates SystemState;
 *		it only compares and remembers.
 *
 *------------------------------------------------------------------*/

// ChangeKind tags which field of VoiceChange changed.
type ChangeKind int

const (
	// ChangeMIDI indicates voice.MIDINote changed while sounding.
	ChangeMIDI ChangeKind = iota
	// ChangeVolumeOn indicates the voice started sounding.
	ChangeVolumeOn
	// ChangeVolumeOff indicates the voice stopped sounding.
	ChangeVolumeOff
)

// VoiceChange is one minimal update to emit toward the host.
type VoiceChange struct {
	Kind     ChangeKind
	VoiceID  int
	MIDINote int
}

// Emitter tracks the last (midi, volume) pair emitted for every voice,
// so Diff only reports what changed since the previous tick.
type Emitter struct {
	lastMIDI   [NumVoices + 1]int
	lastVolume [NumVoices + 1]bool
	lastCount  int
	primed     bool
}

// NewEmitter returns an Emitter with no prior emission recorded; the
// first Diff call against it always reports every sounding voice (full
// resync semantics).
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Diff compares s against the last emitted snapshot and returns the
// minimal set of voice changes plus whether the active voice count
// changed. It updates the emitter's cache as a side effect, so it must
// be called at most once per tick.
func (e *Emitter) Diff(s *SystemState) ([]VoiceChange, bool) {
	var changes []VoiceChange

	count := 0

	for _, v := range s.Voices {
		prevVolume := e.lastVolume[v.ID]
		prevMIDI := e.lastMIDI[v.ID]

		switch {
		case v.Volume && !prevVolume:
			changes = append(changes, VoiceChange{Kind: ChangeVolumeOn, VoiceID: v.ID, MIDINote: v.MIDINote})
		case !v.Volume && prevVolume:
			changes = append(changes, VoiceChange{Kind: ChangeVolumeOff, VoiceID: v.ID})
		case v.Volume && prevVolume && v.MIDINote != prevMIDI:
			changes = append(changes, VoiceChange{Kind: ChangeMIDI, VoiceID: v.ID, MIDINote: v.MIDINote})
		}

		e.lastMIDI[v.ID] = v.MIDINote
		e.lastVolume[v.ID] = v.Volume

		if v.Volume {
			count++
		}
	}

	countChanged := !e.primed || count != e.lastCount
	e.lastCount = count
	e.primed = true

	return changes, countChanged
}

// ActiveCount returns the active-voice count as of the last Diff call.
func (e *Emitter) ActiveCount() int {
	return e.lastCount
}

// ForceResync clears the cache so the next Diff call reports every
// currently-sounding voice as changed, regardless of whether it was
// already sounding at the last tick. Used for the hotplug and /resync
// full-repaint paths.
func (e *Emitter) ForceResync() {
	*e = Emitter{}
}
