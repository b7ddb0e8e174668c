package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Ingest_Apply_rankBit(t *testing.T) {
	s := NewSystemState(1)
	in := NewIngest(s, &RecordingLogger{})

	in.Apply(Event{Kind: EventRankBit, Rank: 1, Slot: 0, Value: 1})

	assert.Equal(t, [4]int{1, 0, 0, 0}, s.Rank(1).GreyCode)
	assert.True(t, in.TakeDirty())
	assert.False(t, in.TakeDirty()) // consumed
}

func Test_Ingest_Apply_dropsMalformedRank(t *testing.T) {
	s := NewSystemState(1)
	log := &RecordingLogger{}
	in := NewIngest(s, log)

	in.Apply(Event{Kind: EventRankBit, Rank: 99, Slot: 0, Value: 1})

	assert.False(t, in.TakeDirty())
	assert.NotEmpty(t, log.Lines)
}

func Test_Ingest_Apply_dropsOutOfRangePriority(t *testing.T) {
	s := NewSystemState(1)
	in := NewIngest(s, &RecordingLogger{})

	before := s.Rank(1).Priority
	in.Apply(Event{Kind: EventRankPriority, Rank: 1, Value: 20})

	assert.Equal(t, before, s.Rank(1).Priority)
	assert.False(t, in.TakeDirty())
}

func Test_Ingest_Apply_sustainAndKeyCenter(t *testing.T) {
	s := NewSystemState(1)
	in := NewIngest(s, &RecordingLogger{})

	in.Apply(Event{Kind: EventSustain, Value: 1})
	assert.True(t, s.Sustain)
	assert.True(t, in.TakeDirty())

	in.Apply(Event{Kind: EventKeyCenter, Value: 66})
	assert.Equal(t, 66, s.KeyCenter)
	assert.True(t, in.TakeDirty())

	in.Apply(Event{Kind: EventKeyCenter, Value: 200}) // out of range, dropped
	assert.Equal(t, 66, s.KeyCenter)
	assert.False(t, in.TakeDirty())
}

func Test_Ingest_ApplyBatch_marksDirtyOnAnyChange(t *testing.T) {
	s := NewSystemState(1)
	in := NewIngest(s, &RecordingLogger{})

	in.ApplyBatch([]Event{
		{Kind: EventSustain, Value: 0}, // no-op, already false
		{Kind: EventKeyCenter, Value: 72},
	})

	assert.True(t, in.TakeDirty())
	assert.Equal(t, 72, s.KeyCenter)
}

func Test_Ingest_WithState_locksAndExposesState(t *testing.T) {
	s := NewSystemState(1)
	in := NewIngest(s, &RecordingLogger{})

	var seenKeyCenter int

	in.WithState(func(st *SystemState) {
		seenKeyCenter = st.KeyCenter
	})

	assert.Equal(t, s.KeyCenter, seenKeyCenter)
}
