package osc

import (
	"fmt"
	"strconv"
	"strings"

	"fibril/engine"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Translate between the control-surface address table and
 *		engine.Event values.
 *
 * Description:	ToEvent handles the inbound table: /R{n}_{bits},
 *		/R{n}_priority, /R{n}_tonicization, /sustain, /keyCenter
 *		(and its /key_center alias), plus the supplemented
 *		/resync address. Outbound voice/activeCount messages are
 *		built by VoiceMIDIMessage, VoiceVolumeMessage and
 *		ActiveCountMessage below.
 *
 *------------------------------------------------------------------*/

var grayBitSlot = map[string]int{
	"1000": 0,
	"0100": 1,
	"0010": 2,
	"0001": 3,
}

// ErrResync is returned by ToEvent for the /resync address, which
// carries no engine.Event of its own — callers should trigger a
// scheduler resync instead.
var ErrResync = fmt.Errorf("osc: /resync requests a full resync, not a state event")

// ErrQueryActiveCount is returned by ToEvent for the supplemented
// /query/activeCount address, a read request that carries no state
// event.
var ErrQueryActiveCount = fmt.Errorf("osc: /query/activeCount requests a read, not a state event")

// ToEvent decodes one inbound OSC message into an engine.Event. ok is
// false for addresses this engine doesn't recognize (logged and
// dropped by the caller, never fatal).
func ToEvent(m Message) (engine.Event, bool, error) {
	switch m.Address {
	case "/resync":
		return engine.Event{}, false, ErrResync
	case "/query/activeCount":
		return engine.Event{}, false, ErrQueryActiveCount
	}

	if len(m.Args) != 1 {
		return engine.Event{}, false, fmt.Errorf("osc: %s expects exactly one int32 argument, got %d", m.Address, len(m.Args))
	}

	value := int(m.Args[0])

	switch {
	case m.Address == "/sustain":
		return engine.Event{Kind: engine.EventSustain, Value: value}, true, nil
	case m.Address == "/keyCenter" || m.Address == "/key_center":
		return engine.Event{Kind: engine.EventKeyCenter, Value: value}, true, nil
	case strings.HasPrefix(m.Address, "/R"):
		return parseRankAddress(m.Address, value)
	default:
		return engine.Event{}, false, nil
	}
}

func parseRankAddress(address string, value int) (engine.Event, bool, error) {
	rest := address[len("/R"):]

	underscore := strings.IndexByte(rest, '_')
	if underscore < 0 {
		return engine.Event{}, false, nil
	}

	rank, err := strconv.Atoi(rest[:underscore])
	if err != nil {
		return engine.Event{}, false, fmt.Errorf("osc: bad rank number in %s: %w", address, err)
	}

	suffix := rest[underscore+1:]

	if slot, isBit := grayBitSlot[suffix]; isBit {
		return engine.Event{Kind: engine.EventRankBit, Rank: rank, Slot: slot, Value: value}, true, nil
	}

	switch suffix {
	case "priority":
		return engine.Event{Kind: engine.EventRankPriority, Rank: rank, Value: value}, true, nil
	case "tonicization":
		return engine.Event{Kind: engine.EventRankTonicization, Rank: rank, Value: value}, true, nil
	default:
		return engine.Event{}, false, nil
	}
}

// VoiceMIDIMessage builds the outbound /voice_{i}_MIDI message.
func VoiceMIDIMessage(voiceID, midi int) Message {
	return Message{Address: fmt.Sprintf("/voice_%d_MIDI", voiceID), Args: []int32{int32(midi)}}
}

// VoiceVolumeMessage builds the outbound /voice_{i}_Volume message.
func VoiceVolumeMessage(voiceID int, on bool) Message {
	v := int32(0)
	if on {
		v = 1
	}

	return Message{Address: fmt.Sprintf("/voice_%d_Volume", voiceID), Args: []int32{v}}
}

// ActiveCountMessage builds the outbound /active_count message.
func ActiveCountMessage(count int) Message {
	return Message{Address: "/active_count", Args: []int32{int32(count)}}
}

// VoiceChangeMessages converts one tick's engine.VoiceChange list (plus
// the active-voice count) into the outbound OSC messages to send.
func VoiceChangeMessages(changes []engine.VoiceChange, activeCount int, countChanged bool) []Message {
	out := make([]Message, 0, len(changes)+1)

	for _, c := range changes {
		switch c.Kind {
		case engine.ChangeMIDI:
			out = append(out, VoiceMIDIMessage(c.VoiceID, c.MIDINote))
		case engine.ChangeVolumeOn:
			out = append(out, VoiceMIDIMessage(c.VoiceID, c.MIDINote))
			out = append(out, VoiceVolumeMessage(c.VoiceID, true))
		case engine.ChangeVolumeOff:
			out = append(out, VoiceVolumeMessage(c.VoiceID, false))
		}
	}

	if countChanged {
		out = append(out, ActiveCountMessage(activeCount))
	}

	return out
}
