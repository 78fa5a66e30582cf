package dispatch

import (
	"time"

	"pingkeeper/internal/keepalive"
	"pingkeeper/pkg/tgui"
)

const (
	deniedAlert     = "You cannot control another user's monitoring."
	stoppedAnswer   = "Stopped."
	nothingAnswer   = "Nothing to stop."
	badButtonAnswer = "This button is no longer valid."
	busyText        = "Busy, try again in a moment."
)

func helpText(interval time.Duration) string {
	return tgui.Lines(
		tgui.B("Hi 👋"),
		tgui.Esc("I keep your projects awake by requesting their URL on a fixed schedule 💤"),
		tgui.F("Every %s, until you stop me.", keepalive.HumanDuration(interval)),
		tgui.Esc("Commands:"),
		tgui.F("• %s start monitoring", tgui.Code("/ping <url>")),
		tgui.F("• %s show the current status", tgui.Code("/status")),
		tgui.F("• %s stop monitoring", tgui.Code("/stop")),
	).String()
}

func invalidURLText() string {
	return tgui.F("❌ Send a valid link starting with %s or %s.", tgui.Code("http"), tgui.Code("https")).String()
}

func nothingToStopText() string { return "❌ There is nothing running to stop." }

func unknownCommandText() string {
	return tgui.F("🤖 Unknown command. Send %s for help.", tgui.Code("/start")).String()
}

func stoppedEditText() string { return tgui.B("✅ Stopped successfully").String() }
