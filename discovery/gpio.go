package discovery

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Hardware sustain-pedal input via a GPIO line, as an
 *		alternative to the OSC /sustain address.
 *
 * Description:	A normally-open footswitch wired to a GPIO line edge-
 *		triggers onSustain(true/false) on every edge the kernel
 *		reports; no debounce period is requested. activeLow
 *		inverts the polarity for switches wired to pull the line
 *		low when pressed.
 *
 *------------------------------------------------------------------*/

// SustainLine owns the requested GPIO line for the lifetime of the
// engine; Close releases it back to the kernel.
type SustainLine struct {
	line *gpiocdev.Line
}

// WatchSustainPedal requests chipName/offset as an input line with
// both-edge detection and calls onSustain on every transition.
func WatchSustainPedal(chipName string, offset int, activeLow bool, onSustain func(down bool)) (*SustainLine, error) {
	handler := func(evt gpiocdev.LineEvent) {
		down := evt.Type == gpiocdev.LineEventRisingEdge
		if activeLow {
			down = !down
		}

		onSustain(down)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler),
	}

	if activeLow {
		opts = append(opts, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}

	l, err := gpiocdev.RequestLine(chipName, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("discovery: requesting GPIO line %s:%d: %w", chipName, offset, err)
	}

	return &SustainLine{line: l}, nil
}

// Close releases the GPIO line.
func (s *SustainLine) Close() error {
	return s.line.Close()
}
