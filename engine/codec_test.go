package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_grayToGCI_knownValues(t *testing.T) {
	cases := []struct {
		bits [4]int
		want int
	}{
		{[4]int{0, 0, 0, 0}, 0},
		{[4]int{0, 0, 0, 1}, 1},
		{[4]int{0, 0, 1, 1}, 2},
		{[4]int{0, 0, 1, 0}, 3},
		{[4]int{1, 1, 1, 1}, 10},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, grayToGCI(c.bits), "bits=%v", c.bits)
	}
}

func Test_densityOf_matchesPopcountTable(t *testing.T) {
	cases := []struct {
		bits [4]int
		want int
	}{
		{[4]int{0, 0, 0, 0}, 0},
		{[4]int{1, 0, 0, 0}, 2},
		{[4]int{1, 1, 0, 0}, 3},
		{[4]int{1, 1, 1, 0}, 4},
		{[4]int{1, 1, 1, 1}, 6},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, densityOf(c.bits), "bits=%v", c.bits)
	}
}

// Test_grayToGCI_isBijective checks every one of the 16 possible 4-bit
// Gray codes maps to a distinct GCI in [0,15] — a basic sanity check
// that the fold doesn't collapse two codes onto one value.
func Test_grayToGCI_isBijective(t *testing.T) {
	seen := make(map[int]bool, 16)

	for i := 0; i < 16; i++ {
		bits := [4]int{(i >> 3) & 1, (i >> 2) & 1, (i >> 1) & 1, i & 1}
		gci := grayToGCI(bits)

		assert.GreaterOrEqual(t, gci, 0)
		assert.LessOrEqual(t, gci, 15)
		assert.Falsef(t, seen[gci], "GCI %d produced by more than one Gray code", gci)

		seen[gci] = true
	}
}

func Test_densityOf_neverExceedsTableBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := [4]int{
			rapid.IntRange(0, 1).Draw(t, "b0"),
			rapid.IntRange(0, 1).Draw(t, "b1"),
			rapid.IntRange(0, 1).Draw(t, "b2"),
			rapid.IntRange(0, 1).Draw(t, "b3"),
		}

		d := densityOf(bits)

		assert.GreaterOrEqual(t, d, 0)
		assert.LessOrEqual(t, d, 6)
	})
}
