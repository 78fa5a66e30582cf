// Package keepalive owns the per-user probe tasks.
//
// A Registry keeps at most one task per Owner. Each task probes one target
// URL on a fixed interval until it is stopped or replaced. The first failed
// probe of a task produces one notification; later failures are only
// logged. Results of probes that belong to a removed task are discarded.
package keepalive
