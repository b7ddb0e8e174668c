package engine

import "sort"

/*------------------------------------------------------------------
 *
 * Purpose:	Voice record and the SystemState aggregate: 8 ranks, 48
 *		voices, sustain/key-center signals, and the frozen-voice
 *		set held by the sustain machine.
 *
 *------------------------------------------------------------------*/

const (
	// NumRanks is the fixed number of rank controllers.
	NumRanks = 8
	// NumVoices is the fixed polyphony pool.
	NumVoices = 48
)

// Voice is one of the 48 fixed polyphonic slots.
type Voice struct {
	ID        int
	MIDINote  int
	Volume    bool
	Sustained bool
}

// frozenVoice is one entry of SystemState.frozen_voices: a voice id
// latched to a MIDI note by the sustain machine.
type frozenVoice struct {
	VoiceID  int
	MIDINote int
}

// SystemState is the full aggregate state the allocator operates on.
// It owns its own PRNG so that allocation is reproducible given a
// fixed seed and event stream.
type SystemState struct {
	Sustain         bool
	PreviousSustain bool
	KeyCenter       int

	Ranks  [NumRanks]*Rank
	Voices [NumVoices]*Voice

	frozen       []frozenVoice
	frozenByMIDI map[int]int // midi -> voice id, for O(1) duplicate checks

	rng *prng
}

// NewSystemState builds a fresh state with default ranks/voices and a
// seeded PRNG. Voices start silent with an arbitrary seed MIDI value;
// rank priorities are seeded from the functional default ordering (see
// defaultRankPriority).
func NewSystemState(seed uint64) *SystemState {
	s := &SystemState{
		KeyCenter:    60,
		frozenByMIDI: make(map[int]int, NumVoices),
		rng:          newPRNG(seed),
	}

	for i := 0; i < NumRanks; i++ {
		s.Ranks[i] = newRank(i + 1)
	}

	for i := 0; i < NumVoices; i++ {
		s.Voices[i] = &Voice{ID: i + 1, MIDINote: 60}
	}

	return s
}

// Rank returns rank n (1..8), or nil if out of range.
func (s *SystemState) Rank(n int) *Rank {
	if n < 1 || n > NumRanks {
		return nil
	}

	return s.Ranks[n-1]
}

// Voice returns voice id (1..48), or nil if out of range.
func (s *SystemState) Voice(id int) *Voice {
	if id < 1 || id > NumVoices {
		return nil
	}

	return s.Voices[id-1]
}

// FrozenVoices returns a stable-ordered snapshot of (voice_id, midi_note)
// pairs currently latched by the sustain machine.
func (s *SystemState) FrozenVoices() []frozenVoice {
	out := make([]frozenVoice, len(s.frozen))
	copy(out, s.frozen)

	return out
}

// IsFrozen reports whether voice id is currently latched.
func (s *SystemState) IsFrozen(voiceID int) bool {
	for _, f := range s.frozen {
		if f.VoiceID == voiceID {
			return true
		}
	}

	return false
}

// freezeVoice latches voice id at its current MIDI note, unless that
// MIDI note is already frozen (frozen notes are pairwise distinct).
// Marks the voice Sustained.
func (s *SystemState) freezeVoice(v *Voice) {
	if _, already := s.frozenByMIDI[v.MIDINote]; already {
		return
	}

	s.frozen = append(s.frozen, frozenVoice{VoiceID: v.ID, MIDINote: v.MIDINote})
	s.frozenByMIDI[v.MIDINote] = v.ID
	v.Sustained = true
}

// clearFrozen empties the frozen set and clears Sustained on every voice
// (sustain falling edge).
func (s *SystemState) clearFrozen() {
	s.frozen = s.frozen[:0]

	for k := range s.frozenByMIDI {
		delete(s.frozenByMIDI, k)
	}

	for _, v := range s.Voices {
		v.Sustained = false
	}
}

// SoundingMIDINotes returns the MIDI notes of every sounding (Volume
// true) voice, frozen or not, sorted ascending.
func (s *SystemState) SoundingMIDINotes() []int {
	notes := make([]int, 0, NumVoices)

	for _, v := range s.Voices {
		if v.Volume {
			notes = append(notes, v.MIDINote)
		}
	}

	sort.Ints(notes)

	return notes
}

// selfHeal defensively enforces that no two sounding voices share a
// MIDI note and that the frozen set stays pairwise distinct. It is not
// expected to find anything in a correctly operating engine; it exists
// as the release-build recovery path for a state-invariant bug rather
// than normal operation.
func (s *SystemState) selfHeal(logger eventLogger) {
	seenMIDI := make(map[int]int, NumVoices) // midi -> first voice id holding it

	for _, v := range s.Voices {
		if !v.Volume {
			continue
		}

		if holder, dup := seenMIDI[v.MIDINote]; dup {
			logger.Warnf("self-heal: duplicate MIDI %d on voices %d and %d, silencing %d", v.MIDINote, holder, v.ID, v.ID)

			v.Volume = false
			v.Sustained = false

			continue
		}

		seenMIDI[v.MIDINote] = v.ID
	}

	if len(s.frozenByMIDI) == len(s.frozen) {
		return
	}

	// Rebuild frozen set from voices that are still validly frozen, to
	// restore pairwise-distinctness if it was ever violated.
	logger.Warnf("self-heal: frozen-voice set had duplicate MIDI entries, truncating")

	kept := s.frozen[:0]
	seen := make(map[int]bool, len(s.frozen))

	for _, f := range s.frozen {
		if seen[f.MIDINote] {
			continue
		}

		seen[f.MIDINote] = true
		kept = append(kept, f)
	}

	s.frozen = kept
	s.frozenByMIDI = make(map[int]int, len(kept))

	for _, f := range kept {
		s.frozenByMIDI[f.MIDINote] = f.VoiceID
	}
}

// eventLogger is the minimal logging surface the engine depends on, so
// tests can substitute a no-op or recording fake without pulling in a
// real charmbracelet/log.Logger.
type eventLogger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}
