// Package systemd reports service state to systemd via sd_notify.
// Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready signals that startup finished.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping signals that shutdown began.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status publishes a free-form status line (shown by systemctl status).
func Status(text string) (bool, error) { return daemon.SdNotify(false, "STATUS="+text) }
