package keepalive

import (
	"time"

	"github.com/hako/durafmt"

	"pingkeeper/pkg/tgui"
)

// Callback data for the stop button: "ka:stop:<owner>".
const (
	CallbackScope = "ka"
	CallbackStop  = "stop"
)

const stopLabel = "🛑 Stop monitoring"

// StopAction is the inline button attached to started and status messages.
// The encoded owner is only a lookup hint; the receiver must compare it
// with the identity of whoever pressed the button.
func StopAction(owner Owner) *Action {
	data, err := tgui.Data(CallbackScope, CallbackStop, owner.String())
	if err != nil {
		return nil
	}
	return &Action{Text: stopLabel, Data: data}
}

// HumanDuration renders d as e.g. "10 seconds" or "2 hours 5 minutes".
func HumanDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}

func StartedText(target string, interval time.Duration) string {
	return tgui.Lines(
		tgui.B("🎉 Monitoring started!"),
		tgui.F("🔗 URL: %s", tgui.Code(target)),
		tgui.F("⏱️ Every %s.", HumanDuration(interval)),
		tgui.Esc("✅ Your project will no longer go idle."),
	).String()
}

func FailureText(target, reason string) string {
	return tgui.Lines(
		tgui.F("%s first probe of %s failed.", tgui.B("⚠️ Warning:"), tgui.Code(target)),
		tgui.F("Reason: %s", tgui.Code(reason)),
		tgui.Esc("Make sure the URL is reachable. Probing continues."),
	).String()
}

func StoppedText(target string) string {
	return tgui.Lines(
		tgui.B("❌ Monitoring stopped!"),
		tgui.F("URL: %s", tgui.Code(target)),
	).String()
}

// StatusText renders the /status reply for an active task.
func StatusText(info TaskInfo, now time.Time) string {
	last := tgui.I("pending")
	if r := info.LastResult; r != nil {
		if r.OK {
			last = tgui.F("ok (HTTP %d, %s) %s ago", r.Status, r.Latency.Round(time.Millisecond), HumanDuration(now.Sub(info.LastProbeAt)))
		} else {
			last = tgui.F("failed: %s", tgui.Code(r.Reason))
		}
	}
	return tgui.Lines(
		tgui.B("🟢 Active"),
		tgui.F("🔗 %s", tgui.Code(info.Target)),
		tgui.F("⏱️ Every %s.", HumanDuration(info.Interval)),
		tgui.F("Up for %s, %d probes, %d failed.", HumanDuration(now.Sub(info.StartedAt)), info.Probes, info.Failures),
		tgui.F("Last probe: %s", last),
	).String()
}

func NotMonitoringText() string { return "🔴 Not monitoring anything right now." }
