package discovery

import (
	"context"

	"github.com/jochenvg/go-udev"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Watch for USB control-surface hotplug events and trigger
 *		a full resync when one reconnects.
 *
 * Description:	Pure-Go netlink monitor rather than a one-time device
 *		scan: this watches the "usb" subsystem continuously and
 *		calls onHotplug for every "add"/"bind" action, so a
 *		reconnected controller gets a fresh full-repaint instead
 *		of a stale cache of its last-known state.
 *
 *------------------------------------------------------------------*/

// WatchHotplug blocks, calling onHotplug for every USB device add/bind
// event, until ctx is cancelled.
func WatchHotplug(ctx context.Context, log Logger, onHotplug func()) {
	u := udev.Udev{}

	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("usb"); err != nil {
		log.Errorf("discovery: udev subsystem filter failed: %v", err)

		return
	}

	devCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		log.Errorf("discovery: starting udev monitor failed: %v", err)

		return
	}

	log.Infof("discovery: watching USB hotplug for control-surface reconnects")

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				log.Errorf("discovery: udev monitor error: %v", err)
			}
		case dev := <-devCh:
			if dev == nil {
				continue
			}

			switch dev.Action() {
			case "add", "bind":
				log.Infof("discovery: USB device %s reconnected, requesting resync", dev.Syspath())
				onHotplug()
			}
		}
	}
}
