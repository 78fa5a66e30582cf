// Package storage is the optional audit log.
//
// Keep-alive tasks themselves are never persisted; a restart starts empty.
// The store only records who started, stopped or was denied stopping a
// task. Drivers: "sqlite" (modernc.org/sqlite, pure Go) and "file"
// (append-only JSON Lines). An empty driver or "none" disables storage.
package storage
