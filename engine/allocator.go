package engine

import (
	"math"
	"sort"
)

/*------------------------------------------------------------------
 *
 * Purpose:	The core allocator: rebuilds voice
 *		assignments every tick under harmonic, register,
 *		voice-leading, and sustain constraints.
 *
 * Description:	Allocate is the single entry point called by the
 *		scheduler once per tick when state is dirty or a
 *		sustain edge is pending. It never returns an error;
 *		failures (starved PRNG residual, all voices frozen)
 *		just mean fewer voices end up sounding this tick.
 *
 *------------------------------------------------------------------*/

var (
	majorScaleOffsets  = [7]int{0, 2, 4, 5, 7, 9, 11}
	wholeToneOffsets   = [6]int{0, 2, 4, 6, 8, 10}
	scaleDegreeOffsets = [8]int{0, 2, 4, 5, 7, 9, 11, 0} // tonicization 1..8
	candidateIntervals = [9]int{0, 7, 4, 2, 5, 9, 11, 14, 17}
)

const registerSigma = 18.0

// Allocate runs one full allocator pass over s, in place.
func Allocate(s *SystemState, log eventLogger) {
	applySustainEdge(s, log)
	s.selfHeal(log)

	activeRanks := activeRanksOf(s)
	if len(activeRanks) == 0 {
		for _, v := range s.Voices {
			if v.Volume && !s.IsFrozen(v.ID) {
				v.Volume = false
			}
		}

		return
	}

	totalDensity := 0
	for _, r := range activeRanks {
		totalDensity += r.Density
	}

	available := NumVoices - len(s.frozen)
	if totalDensity < available {
		available = totalDensity
	}

	if available < 0 {
		available = 0
	}

	// A key or tonicization change can leave non-frozen voices on notes
	// no active rank allows any more; silence those before refilling.
	allowed := make(map[int]bool, 128)
	for _, r := range activeRanks {
		for _, m := range rankValidDestinations(r, s.KeyCenter) {
			allowed[m] = true
		}
	}

	for _, v := range s.Voices {
		if v.Volume && !s.IsFrozen(v.ID) && !allowed[v.MIDINote] {
			v.Volume = false
		}
	}

	evictExcess(s, available)
	ensureRootedNotes(s, activeRanks, log)

	probMap := buildProbabilityMap(s, activeRanks)

	for countNonFrozenSounding(s) < available {
		forbidden := soundingMIDISet(s)

		midi, ok := sampleWithoutReplacement(probMap, forbidden, s.rng)
		if !ok {
			log.Debugf("allocator: probability residual exhausted at %d/%d voices", countNonFrozenSounding(s), available)

			break
		}

		v := placeVoice(s)
		if v == nil {
			log.Debugf("allocator: no free voice to place MIDI %d", midi)

			break
		}

		v.MIDINote = midi
		v.Volume = true

		if s.Sustain {
			s.freezeVoice(v)
		}
	}
}

func activeRanksOf(s *SystemState) []*Rank {
	out := make([]*Rank, 0, NumRanks)

	for _, r := range s.Ranks {
		if r.Density > 0 {
			out = append(out, r)
		}
	}

	return out
}

func countNonFrozenSounding(s *SystemState) int {
	n := 0

	for _, v := range s.Voices {
		if v.Volume && !s.IsFrozen(v.ID) {
			n++
		}
	}

	return n
}

func soundingMIDISet(s *SystemState) map[int]bool {
	out := make(map[int]bool, NumVoices)

	for _, v := range s.Voices {
		if v.Volume {
			out[v.MIDINote] = true
		}
	}

	return out
}

func soundingPitchClasses(s *SystemState) map[int]bool {
	out := make(map[int]bool, 12)

	for _, v := range s.Voices {
		if v.Volume {
			out[mod12(v.MIDINote)] = true
		}
	}

	return out
}

// evictExcess silences non-frozen sounding voices, highest pitch first
// (LIFO-by-pitch, tie-break highest id), until at most available remain.
func evictExcess(s *SystemState, available int) {
	var nonFrozen []*Voice

	for _, v := range s.Voices {
		if v.Volume && !s.IsFrozen(v.ID) {
			nonFrozen = append(nonFrozen, v)
		}
	}

	sort.Slice(nonFrozen, func(i, j int) bool {
		if nonFrozen[i].MIDINote != nonFrozen[j].MIDINote {
			return nonFrozen[i].MIDINote > nonFrozen[j].MIDINote
		}

		return nonFrozen[i].ID > nonFrozen[j].ID
	})

	excess := len(nonFrozen) - available
	for i := 0; i < excess && i < len(nonFrozen); i++ {
		nonFrozen[i].Volume = false
	}
}

// placeVoice finds a target voice: reuse the lowest-id silent
// non-frozen voice, else steal the highest-pitched non-frozen sounding
// voice (tie-break highest id), else nil if every voice is frozen.
// Selection never depends on the destination note.
func placeVoice(s *SystemState) *Voice {
	for _, v := range s.Voices {
		if !v.Volume && !s.IsFrozen(v.ID) {
			return v
		}
	}

	var best *Voice

	for _, v := range s.Voices {
		if !v.Volume || s.IsFrozen(v.ID) {
			continue
		}

		if best == nil || v.MIDINote > best.MIDINote || (v.MIDINote == best.MIDINote && v.ID > best.ID) {
			best = v
		}
	}

	return best
}

// ensureRootedNotes forces the tonic of each active rank into the
// sounding set if neither its tonic nor its perfect fifth is already
// present. Never touches a frozen voice.
func ensureRootedNotes(s *SystemState, activeRanks []*Rank, log eventLogger) {
	kcPC := mod12(s.KeyCenter)

	for _, r := range activeRanks {
		tonicPC := rankTonicPC(r, kcPC)
		fifthPC := mod12(tonicPC + 7)

		present := soundingPitchClasses(s)
		if present[tonicPC] || present[fifthPC] {
			continue
		}

		target := baseOctaveMIDI(r.Priority)
		midi := nearestMIDIForPitchClass(tonicPC, target)

		sounding := soundingMIDISet(s)
		if sounding[midi] {
			continue
		}

		v := placeVoice(s)
		if v == nil {
			log.Debugf("allocator: no free voice to force root for rank %d", r.Number)

			continue
		}

		v.MIDINote = midi
		v.Volume = true

		if s.Sustain {
			s.freezeVoice(v)
		}
	}
}

// baseOctaveMIDI is the priority-chosen octave for forced notes:
// base_octave = 4 + floor(((8-priority)/8)*2), expressed as a MIDI
// value (octave*12), clamped into [0,127].
func baseOctaveMIDI(priority int) int {
	baseOctave := 4 + int(math.Floor(float64(8-priority)/8*2))
	m := baseOctave * 12

	if m < 0 {
		m = 0
	}

	if m > 127 {
		m = 127
	}

	return m
}

// nearestMIDIForPitchClass returns the MIDI note with pitch class pc
// closest to target, searching every octave in range.
func nearestMIDIForPitchClass(pc, target int) int {
	best := pc
	bestDist := 1 << 30

	for octave := 0; octave <= 10; octave++ {
		m := pc + 12*octave
		if m < 0 || m > 127 {
			continue
		}

		d := abs(m - target)
		if d < bestDist {
			bestDist = d
			best = m
		}
	}

	return best
}

// rankTonicPC returns the rank's tonic pitch class.
func rankTonicPC(r *Rank, kcPC int) int {
	if r.Tonicization == 9 {
		return mod12(kcPC + 6)
	}

	offset := scaleDegreeOffsets[r.Tonicization-1]

	return mod12(kcPC + offset)
}

// rankValidDestinations returns the rank's full valid-destination set
// across all octaves.
func rankValidDestinations(r *Rank, keyCenter int) []int {
	kcPC := mod12(keyCenter)
	tonicPC := rankTonicPC(r, kcPC)

	var fitted []int

	if r.Tonicization == 9 {
		keyNotes := scaleSet(kcPC, wholeToneOffsets[:])

		for _, interval := range candidateIntervals {
			targetPC := mod12(tonicPC + interval)
			if keyNotes[targetPC] {
				fitted = append(fitted, interval)

				continue
			}

			up := closestInKey(targetPC, keyNotes, 1)
			down := closestInKey(targetPC, keyNotes, -1)

			if abs(up) <= abs(down) {
				fitted = append(fitted, interval+up)
			} else {
				fitted = append(fitted, interval+down)
			}
		}
	} else {
		keyNotes := scaleSet(kcPC, majorScaleOffsets[:])

		for _, interval := range candidateIntervals {
			targetPC := mod12(tonicPC + interval)
			if keyNotes[targetPC] {
				fitted = append(fitted, interval)

				continue
			}

			up := closestInKey(targetPC, keyNotes, 1)
			down := closestInKey(targetPC, keyNotes, -1)
			upInterval := interval + up
			downInterval := interval + down
			upForbidden := upInterval == 6 || upInterval == 20
			downForbidden := downInterval == 6 || downInterval == 20

			switch {
			case upForbidden && downForbidden:
				continue
			case upForbidden:
				fitted = append(fitted, downInterval)
			case downForbidden:
				fitted = append(fitted, upInterval)
			case interval == 2 || interval == 5: // 2nd, 4th snap up
				fitted = append(fitted, upInterval)
			case interval == 11 || interval == 17: // 7th, 11th snap down
				fitted = append(fitted, downInterval)
			case abs(up) <= abs(down):
				fitted = append(fitted, upInterval)
			default:
				fitted = append(fitted, downInterval)
			}
		}
	}

	seen := make(map[int]bool, len(fitted)*8)

	out := make([]int, 0, len(fitted)*8)

	for _, interval := range fitted {
		for octave := -1; octave <= 10; octave++ {
			m := tonicPC + interval + 12*octave
			if m < 0 || m > 127 || seen[m] {
				continue
			}

			seen[m] = true

			out = append(out, m)
		}
	}

	sort.Ints(out)

	return out
}

// scaleSet returns a pitch-class membership set for the scale built
// from offsets anchored at kcPC.
func scaleSet(kcPC int, offsets []int) map[int]bool {
	out := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		out[mod12(kcPC+o)] = true
	}

	return out
}

// closestInKey searches up to six semitones in direction (+1 or -1)
// for the nearest pitch class in keyNotes, returning the signed
// adjustment (0 if none found within six steps, which cannot happen
// for the major and whole-tone scales used here).
func closestInKey(targetPC int, keyNotes map[int]bool, direction int) int {
	adjustment := 0

	for i := 0; i < 6; i++ {
		adjustment += direction

		cur := mod12(targetPC + adjustment)
		if keyNotes[cur] {
			return adjustment
		}
	}

	return 0
}

// buildProbabilityMap overlays every active rank's curve into one
// normalized 128-bin distribution.
func buildProbabilityMap(s *SystemState, activeRanks []*Rank) [128]float64 {
	var global [128]float64

	sounding := s.SoundingMIDINotes()

	for _, r := range activeRanks {
		destinations := rankValidDestinations(r, s.KeyCenter)

		var indicator [128]float64
		for _, m := range destinations {
			indicator[m] = 1.0
		}

		mask := voiceLeadingMask(r.VoiceLeadingDirection(), sounding)
		bias := registerBias(r.Priority, s.KeyCenter)
		weight := float64(9-r.Priority) / 8.0

		for i := 0; i < 128; i++ {
			global[i] += indicator[i] * mask[i] * bias[i] * weight
		}
	}

	total := 0.0
	for _, p := range global {
		total += p
	}

	if total > 0 {
		for i := range global {
			global[i] /= total
		}
	}

	return global
}

// voiceLeadingMask biases MIDI notes near currently-sounding notes in
// the direction a rank's Gray code just moved, normalized
// so its maximum is 1.
func voiceLeadingMask(direction int, sounding []int) [128]float64 {
	var mask [128]float64
	for i := range mask {
		mask[i] = 1.0
	}

	for _, s := range sounding {
		switch {
		case direction > 0:
			boostAbove(&mask, s)
		case direction < 0:
			boostBelow(&mask, s)
		default:
			boostNeighborhood(&mask, s)
		}
	}

	max := 0.0

	for _, v := range mask {
		if v > max {
			max = v
		}
	}

	if max > 0 {
		for i := range mask {
			mask[i] /= max
		}
	}

	return mask
}

func boostAbove(mask *[128]float64, s int) {
	for d := 1; d <= 2; d++ {
		if idx := s + d; idx >= 0 && idx < 128 {
			mask[idx] *= float64(3 - d)
		}
	}

	for d := 3; d <= 5; d++ {
		if idx := s + d; idx >= 0 && idx < 128 {
			mask[idx] *= 0.5
		}
	}
}

func boostBelow(mask *[128]float64, s int) {
	for d := 1; d <= 2; d++ {
		if idx := s - d; idx >= 0 && idx < 128 {
			mask[idx] *= float64(3 - d)
		}
	}

	for d := 3; d <= 5; d++ {
		if idx := s - d; idx >= 0 && idx < 128 {
			mask[idx] *= 0.5
		}
	}
}

func boostNeighborhood(mask *[128]float64, s int) {
	for d := 1; d <= 2; d++ {
		if idx := s + d; idx >= 0 && idx < 128 {
			mask[idx] *= 1.2
		}

		if idx := s - d; idx >= 0 && idx < 128 {
			mask[idx] *= 1.2
		}
	}
}

// registerBias is the rank's Gaussian register curve,
// centered at key_center + ((priority+7)/2 - 4)*12 with sigma ~= 18
// semitones.
func registerBias(priority, keyCenter int) [128]float64 {
	center := float64(keyCenter) + (float64(priority+7)/2.0-4.0)*12.0

	var bias [128]float64
	for i := 0; i < 128; i++ {
		d := float64(i) - center
		bias[i] = math.Exp(-(d * d) / (2 * registerSigma * registerSigma))
	}

	return bias
}

// sampleWithoutReplacement draws one MIDI note from probMap, excluding
// forbidden. Returns ok=false if the residual is
// exhausted (every admissible bin is zero).
func sampleWithoutReplacement(probMap [128]float64, forbidden map[int]bool, rng *prng) (int, bool) {
	total := 0.0

	for midi := 0; midi < 128; midi++ {
		if forbidden[midi] {
			continue
		}

		total += probMap[midi]
	}

	if total <= 0 {
		return 0, false
	}

	roll := rng.Float64() * total
	cum := 0.0

	for midi := 0; midi < 128; midi++ {
		if forbidden[midi] {
			continue
		}

		cum += probMap[midi]
		if roll <= cum {
			return midi, true
		}
	}

	return 0, false
}

func mod12(x int) int {
	x %= 12
	if x < 0 {
		x += 12
	}

	return x
}

func abs(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
