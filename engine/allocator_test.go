package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_Allocate_allZeroDensitySilencesVoices(t *testing.T) {
	s := NewSystemState(42)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true

	Allocate(s, &RecordingLogger{})

	assert.Empty(t, s.SoundingMIDINotes())
}

func Test_Allocate_maxDensityFillsAllVoices(t *testing.T) {
	s := NewSystemState(42)

	for _, r := range s.Ranks {
		r.UpdateBit(0, 1)
		r.UpdateBit(1, 1)
		r.UpdateBit(2, 1)
		r.UpdateBit(3, 1)
	}

	Allocate(s, &RecordingLogger{})

	assert.Len(t, s.SoundingMIDINotes(), NumVoices)
}

// Test_Allocate_S1_basicTonicVoicing follows scenario S1.
func Test_Allocate_S1_basicTonicVoicing(t *testing.T) {
	s := NewSystemState(7)

	r3 := s.Rank(3)
	r3.UpdatePriority(1)
	r3.UpdateTonicization(1)
	r3.UpdateBit(1, 1) // grey=[0,1,0,0], popcount=1 -> density 2

	Allocate(s, &RecordingLogger{})

	sounding := s.SoundingMIDINotes()
	assert.Len(t, sounding, 2)

	majorPCs := map[int]bool{0: true, 2: true, 4: true, 5: true, 7: true, 9: true, 11: true}

	hasRootOrFifth := false

	for _, m := range sounding {
		pc := mod12(m)
		assert.Truef(t, majorPCs[pc], "MIDI %d (pc %d) outside C major", m, pc)

		if pc == 0 || pc == 7 {
			hasRootOrFifth = true
		}
	}

	assert.True(t, hasRootOrFifth)
}

// Test_Allocate_S2S3_sustainHoldAndRelease follows scenarios S2/S3.
func Test_Allocate_S2S3_sustainHoldAndRelease(t *testing.T) {
	s := NewSystemState(7)
	log := &RecordingLogger{}

	r3 := s.Rank(3)
	r3.UpdatePriority(1)
	r3.UpdateTonicization(1)
	r3.UpdateBit(1, 1)

	Allocate(s, log)
	before := append([]int(nil), s.SoundingMIDINotes()...)
	assert.Len(t, before, 2)

	s.Sustain = true
	Allocate(s, log) // rising edge freezes the 2 sounding voices

	frozen := s.FrozenVoices()
	assert.Len(t, frozen, 2)

	for _, f := range frozen {
		assert.Contains(t, before, f.MIDINote)
	}

	r3.UpdateBit(1, 0)
	r3.UpdateBit(0, 1) // different Gray code, still density-bearing

	Allocate(s, log)

	afterFrozen := s.FrozenVoices()
	assert.ElementsMatch(t, frozen, afterFrozen)

	for _, f := range afterFrozen {
		v := s.Voice(f.VoiceID)
		assert.True(t, v.Volume)
		assert.Equal(t, f.MIDINote, v.MIDINote)
	}

	s.Sustain = false
	Allocate(s, log) // falling edge: scenario S3

	assert.Empty(t, s.FrozenVoices())

	for _, v := range s.Voices {
		assert.False(t, v.Sustained)
	}
}

// Test_Allocate_S4_densityDownsizeEvictsHighestPitchFirst follows S4.
func Test_Allocate_S4_densityDownsizeEvictsHighestPitchFirst(t *testing.T) {
	s := NewSystemState(7)
	log := &RecordingLogger{}

	r1, r2 := s.Rank(1), s.Rank(2)
	r1.UpdateBit(0, 1)
	r1.UpdateBit(1, 1) // popcount 2 -> density 3
	r2.UpdateBit(0, 1)
	r2.UpdateBit(1, 1) // density 3 -> total 6

	Allocate(s, log)
	assert.Len(t, s.SoundingMIDINotes(), 6)

	r2.UpdateBit(0, 0)
	r2.UpdateBit(1, 0) // density 0

	Allocate(s, log)

	assert.Len(t, s.SoundingMIDINotes(), 3)
}

// Test_Allocate_S5_keyChangeShiftsValidPitchClasses follows S5.
func Test_Allocate_S5_keyChangeShiftsValidPitchClasses(t *testing.T) {
	s := NewSystemState(7)
	log := &RecordingLogger{}

	r1 := s.Rank(1)
	r1.UpdateTonicization(1)
	r1.UpdateBit(0, 1)
	r1.UpdateBit(1, 1)

	Allocate(s, log)

	s.KeyCenter = 66
	Allocate(s, log)

	fSharpMajorPCs := scaleSet(mod12(66), majorScaleOffsets[:])

	for _, v := range s.Voices {
		if !v.Volume || s.IsFrozen(v.ID) {
			continue
		}

		assert.True(t, fSharpMajorPCs[mod12(v.MIDINote)])
	}
}

// Test_Allocate_S6_noDuplicateSoundingOrFrozenMIDI follows S6 as a
// property test: across many ticks of random Gray-bit toggling with
// sustain held, sounding MIDI notes never collide and the frozen set
// stays pairwise distinct.
func Test_Allocate_S6_noDuplicateSoundingOrFrozenMIDI(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSystemState(rapid.Uint64().Draw(t, "seed"))
		log := &RecordingLogger{}

		for _, r := range s.Ranks {
			r.UpdateBit(0, 1)
			r.UpdateBit(1, 1)
			r.UpdateBit(2, 1)
			r.UpdateBit(3, 1)
		}

		s.Sustain = true

		ticks := rapid.IntRange(1, 40).Draw(t, "ticks")

		for i := 0; i < ticks; i++ {
			rankN := rapid.IntRange(1, NumRanks).Draw(t, "rank")
			slot := rapid.IntRange(0, 3).Draw(t, "slot")
			value := rapid.IntRange(0, 1).Draw(t, "value")

			s.Rank(rankN).UpdateBit(slot, value)

			Allocate(s, log)

			seen := make(map[int]bool)

			for _, m := range s.SoundingMIDINotes() {
				assert.Falsef(t, seen[m], "duplicate sounding MIDI %d", m)
				seen[m] = true
			}

			frozenSeen := make(map[int]bool)

			for _, f := range s.FrozenVoices() {
				assert.Falsef(t, frozenSeen[f.MIDINote], "duplicate frozen MIDI %d", f.MIDINote)
				frozenSeen[f.MIDINote] = true
			}
		}
	})
}

func Test_Allocate_isDeterministicGivenSameSeedAndEvents(t *testing.T) {
	run := func(seed uint64) []int {
		s := NewSystemState(seed)
		log := &RecordingLogger{}

		for _, r := range s.Ranks {
			r.UpdateBit(0, 1)
			r.UpdateBit(2, 1)
		}

		Allocate(s, log)
		Allocate(s, log)

		return s.SoundingMIDINotes()
	}

	a := run(123)
	b := run(123)

	assert.Equal(t, a, b)
}

func Test_rankValidDestinations_withinMIDIRange(t *testing.T) {
	r := newRank(1)
	r.UpdateTonicization(1)

	dest := rankValidDestinations(r, 60)
	assert.NotEmpty(t, dest)

	for _, m := range dest {
		assert.GreaterOrEqual(t, m, 0)
		assert.LessOrEqual(t, m, 127)
	}
}

func Test_rankValidDestinations_wholeToneForTonicization9(t *testing.T) {
	r := newRank(1)
	r.UpdateTonicization(9)

	dest := rankValidDestinations(r, 60)

	wholeTone := scaleSet(mod12(60), wholeToneOffsets[:])

	for _, m := range dest {
		assert.True(t, wholeTone[mod12(m)], "MIDI %d (pc %d) not in whole-tone set", m, mod12(m))
	}
}

func Test_sampleWithoutReplacement_excludesForbidden(t *testing.T) {
	var probMap [128]float64
	probMap[60] = 1.0
	probMap[61] = 1.0

	forbidden := map[int]bool{60: true}
	rng := newPRNG(1)

	for i := 0; i < 20; i++ {
		m, ok := sampleWithoutReplacement(probMap, forbidden, rng)
		assert.True(t, ok)
		assert.Equal(t, 61, m)
	}
}

func Test_sampleWithoutReplacement_exhaustedResidual(t *testing.T) {
	var probMap [128]float64
	probMap[60] = 1.0

	forbidden := map[int]bool{60: true}
	rng := newPRNG(1)

	_, ok := sampleWithoutReplacement(probMap, forbidden, rng)
	assert.False(t, ok)
}
