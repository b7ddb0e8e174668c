// Package discovery advertises and watches for the hardware/network
// companions a running engine can have: mDNS announcement for OSC
// controllers, USB hotplug for control-surface reconnects, and GPIO
// for a hardware sustain pedal.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Announce the OSC control service using DNS-SD so a
 *		controller can find the engine without a hardcoded
 *		address.
 *
 * Description:	Pure-Go mDNS/DNS-SD announcement via
 *		github.com/brutella/dnssd, cross-platform and without
 *		a system daemon dependency.
 *
 *------------------------------------------------------------------*/

// ServiceType is the DNS-SD service type the engine advertises.
const ServiceType = "_fibril._udp"

// Logger is the minimal logging surface this package depends on.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// AnnounceOSC advertises the engine's inbound OSC listen port under
// name via DNS-SD, running the responder in a background goroutine
// until ctx is cancelled.
func AnnounceOSC(ctx context.Context, name string, listenPort int, log Logger) error {
	if name == "" {
		name = "fibril"
	}

	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: listenPort,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: creating DNS-SD service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: creating DNS-SD responder: %w", err)
	}

	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("discovery: adding DNS-SD service: %w", err)
	}

	log.Infof("discovery: announcing OSC control surface on port %d as %q", listenPort, name)

	go func() {
		if err := rp.Respond(ctx); err != nil {
			log.Errorf("discovery: DNS-SD responder stopped: %v", err)
		}
	}()

	return nil
}
