// Package notifier delivers outbound chat messages asynchronously.
//
// Callers enqueue a Notification and return immediately. A small worker
// pool drains the queue under a shared rate limit and retries failed sends
// with jittered exponential backoff. A full queue drops the message
// (ErrQueueFull) instead of blocking the caller.
//
// OwnerNotifier adapts the service to keepalive.Notifier so the task
// registry can address users by owner id.
package notifier
