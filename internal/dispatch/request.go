package dispatch

import (
	"pingkeeper/internal/keepalive"
	kit "pingkeeper/internal/transport"
	logx "pingkeeper/pkg/logx"
)

// Request is one routed update.
type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	// FromID is the sender from the update envelope. It is the only
	// identity handlers act on.
	FromID   int64
	Username string
	Command  string
	Args     []string
	Payload  string
	ReqID    string
	Logger   logx.Logger
}

func (r *Request) Owner() keepalive.Owner { return keepalive.Owner(r.FromID) }
