package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// voiceSnapshot is one Voice's state at a tick boundary.
type voiceSnapshot struct {
	ID        int  `json:"id"`
	MIDINote  int  `json:"midi_note"`
	Volume    bool `json:"volume"`
	Sustained bool `json:"sustained"`
}

// rankSnapshot is one Rank's state at a tick boundary.
type rankSnapshot struct {
	Number       int `json:"number"`
	Priority     int `json:"priority"`
	Tonicization int `json:"tonicization"`
	GCI          int `json:"gci"`
	Density      int `json:"density"`
}

// snapshotLine is one JSONL record written by a SnapshotWriter.
type snapshotLine struct {
	Tick      int64          `json:"tick"`
	Sustain   bool           `json:"sustain"`
	KeyCenter int            `json:"key_center"`
	Ranks     []rankSnapshot `json:"ranks"`
	Voices    []voiceSnapshot `json:"voices"`
}

// SnapshotWriter appends one JSONL record per tick to a file whose name
// is resolved from a strftime pattern, so a long-running engine doesn't
// accumulate one unbounded log (e.g. "fibril-%Y%m%d.jsonl" rotates daily).
// It exists purely for offline replay/debugging of a reported allocation
// anomaly; nothing in the engine reads it back.
type SnapshotWriter struct {
	mu       sync.Mutex
	pattern  *strftime.Strftime
	f        *os.File
	openPath string
	tick     int64
}

// NewSnapshotWriter compiles pathPattern as a strftime template. The
// underlying file is opened lazily on the first Write call, and reopened
// whenever the resolved path changes (rotation).
func NewSnapshotWriter(pathPattern string) (*SnapshotWriter, error) {
	pattern, err := strftime.New(pathPattern)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compiling path pattern %q: %w", pathPattern, err)
	}

	return &SnapshotWriter{pattern: pattern}, nil
}

// Write appends one snapshot of s as a JSON line, opening or rotating
// the backing file as needed. now is the tick time, passed in by the
// caller so this type stays free of direct time.Now() calls.
func (w *SnapshotWriter) Write(s *SystemState, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.pattern.FormatString(now)

	if path != w.openPath {
		if w.f != nil {
			w.f.Close()
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("snapshot: opening %q: %w", path, err)
		}

		w.f = f
		w.openPath = path
	}

	line := snapshotLine{
		Tick:      w.tick,
		Sustain:   s.Sustain,
		KeyCenter: s.KeyCenter,
	}

	for _, r := range s.Ranks {
		line.Ranks = append(line.Ranks, rankSnapshot{
			Number:       r.Number,
			Priority:     r.Priority,
			Tonicization: r.Tonicization,
			GCI:          r.GCI,
			Density:      r.Density,
		})
	}

	for _, v := range s.Voices {
		line.Voices = append(line.Voices, voiceSnapshot{
			ID:        v.ID,
			MIDINote:  v.MIDINote,
			Volume:    v.Volume,
			Sustained: v.Sustained,
		})
	}

	encoded, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("snapshot: marshaling tick %d: %w", w.tick, err)
	}

	w.tick++

	if _, err := w.f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("snapshot: writing tick %d: %w", line.Tick, err)
	}

	return nil
}

// Close closes the currently open backing file, if any.
func (w *SnapshotWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}

	err := w.f.Close()
	w.f = nil

	return err
}
