package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Sustain freeze machine: snapshot/hold/release voices on
 *		pedal edges.
 *
 * Description:	Runs as the first step of every allocator pass. It
 *		only ever looks at (previous_sustain, sustain); it never
 *		reassigns, steals, silences, or repitches a frozen voice.
 *
 *------------------------------------------------------------------*/

// applySustainEdge advances the sustain machine for one tick. The
// resulting frozen set is readable afterward via s.FrozenVoices.
func applySustainEdge(s *SystemState, log eventLogger) {
	switch {
	case !s.PreviousSustain && s.Sustain:
		// OFF -> HELD: snapshot every sounding voice.
		for _, v := range s.Voices {
			if v.Volume {
				s.freezeVoice(v)
			}
		}

		if len(s.frozen) > 0 {
			log.Infof("sustain: pedal down, froze %d voice(s)", len(s.frozen))
		}
	case s.PreviousSustain && !s.Sustain:
		// HELD -> OFF: clear the latch entirely.
		n := len(s.frozen)
		s.clearFrozen()

		if n > 0 {
			log.Infof("sustain: pedal up, released %d voice(s)", n)
		}
	}
	// HELD -> HELD and OFF -> OFF: no structural change here; new
	// allocations made while HELD are frozen individually as they're
	// placed (see Allocate and ensureRootedNotes in allocator.go).

	s.PreviousSustain = s.Sustain
}
