package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Emitter_firstDiffReportsEverySoundingVoice(t *testing.T) {
	s := NewSystemState(1)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true
	s.Voice(2).MIDINote, s.Voice(2).Volume = 64, true

	e := NewEmitter()
	changes, countChanged := e.Diff(s)

	assert.True(t, countChanged)
	assert.Equal(t, 2, e.ActiveCount())

	var onCount int

	for _, c := range changes {
		if c.Kind == ChangeVolumeOn {
			onCount++
		}
	}

	assert.Equal(t, 2, onCount)
}

func Test_Emitter_secondDiffIsMinimal(t *testing.T) {
	s := NewSystemState(1)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true

	e := NewEmitter()
	e.Diff(s)

	changes, countChanged := e.Diff(s) // nothing changed
	assert.Empty(t, changes)
	assert.False(t, countChanged)
}

func Test_Emitter_reportsMIDIChangeWhileStillSounding(t *testing.T) {
	s := NewSystemState(1)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true

	e := NewEmitter()
	e.Diff(s)

	s.Voice(1).MIDINote = 62
	changes, countChanged := e.Diff(s)

	assert.False(t, countChanged)
	assert.Len(t, changes, 1)
	assert.Equal(t, ChangeMIDI, changes[0].Kind)
	assert.Equal(t, 62, changes[0].MIDINote)
}

func Test_Emitter_reportsVolumeOff(t *testing.T) {
	s := NewSystemState(1)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true

	e := NewEmitter()
	e.Diff(s)

	s.Voice(1).Volume = false
	changes, countChanged := e.Diff(s)

	assert.True(t, countChanged)
	assert.Equal(t, 0, e.ActiveCount())
	assert.Len(t, changes, 1)
	assert.Equal(t, ChangeVolumeOff, changes[0].Kind)
}

func Test_Emitter_ForceResyncReplaysEverySoundingVoice(t *testing.T) {
	s := NewSystemState(1)
	s.Voice(1).MIDINote, s.Voice(1).Volume = 60, true

	e := NewEmitter()
	e.Diff(s)

	changesBefore, _ := e.Diff(s)
	assert.Empty(t, changesBefore)

	e.ForceResync()

	changesAfter, countChanged := e.Diff(s)
	assert.True(t, countChanged)
	assert.NotEmpty(t, changesAfter)
}
