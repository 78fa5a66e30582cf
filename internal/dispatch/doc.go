// Package dispatch routes chat updates to the keep-alive registry.
//
// Commands:
//
//	/start, /help        usage
//	/start <url>         start monitoring (alias /ping <url>)
//	/status              current target, interval, uptime, last probe
//	/stop                stop monitoring
//
// Anything else beginning with "/" gets an "unknown command" reply; plain
// text is ignored.
//
// The stop button carries "ka:stop:<owner>". Only the user who pressed the
// button (taken from the update envelope) is ever stopped, and only when it
// matches the encoded owner.
//
// Updates are handled on a small worker pool under a supervisor. Work is
// sharded by sender so one user's commands run in arrival order.
package dispatch
