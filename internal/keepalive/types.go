package keepalive

import (
	"context"
	"strconv"
	"time"
)

// Owner identifies the user who registered a task (the Telegram user id).
type Owner int64

func (o Owner) String() string { return strconv.FormatInt(int64(o), 10) }

// ParseOwner parses the decimal form produced by Owner.String.
func ParseOwner(s string) (Owner, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Owner(n), nil
}

// Result is the outcome of one probe. Any completed HTTP response is OK,
// whatever its status code.
type Result struct {
	OK      bool          `json:"ok"`
	Status  int           `json:"status,omitempty"`
	Latency time.Duration `json:"latency"`
	Reason  string        `json:"reason,omitempty"`
}

// Action is an optional inline button attached to a notification.
type Action struct {
	Text string
	Data string
}

// Notifier delivers one outbound message to an owner. Implementations must
// not block on delivery; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, owner Owner, text string, action *Action)
}

type NotifierFunc func(ctx context.Context, owner Owner, text string, action *Action)

func (f NotifierFunc) Notify(ctx context.Context, owner Owner, text string, action *Action) {
	f(ctx, owner, text, action)
}

// TaskInfo is a point-in-time copy of a task.
type TaskInfo struct {
	Owner           Owner         `json:"owner"`
	Target          string        `json:"target"`
	Interval        time.Duration `json:"interval"`
	StartedAt       time.Time     `json:"started_at"`
	LastProbeAt     time.Time     `json:"last_probe_at,omitempty"`
	LastResult      *Result       `json:"last_result,omitempty"`
	Probes          uint64        `json:"probes"`
	Failures        uint64        `json:"failures"`
	FailureNotified bool          `json:"failure_notified"`
}
