package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"pingkeeper/internal/keepalive"
	kit "pingkeeper/internal/transport"
	logx "pingkeeper/pkg/logx"
)

// Enqueuer is satisfied by *Service.
type Enqueuer interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// OwnerNotifier implements keepalive.Notifier: owners are Telegram users,
// so their private chat id equals their user id.
type OwnerNotifier struct {
	q   Enqueuer
	log logx.Logger

	// direct delivers in the background while the queue is disabled.
	direct  Sender
	slots   sizedwaitgroup.SizedWaitGroup
	pending sync.WaitGroup
}

// fallbackSends bounds concurrent direct sends.
const fallbackSends = 8

var _ keepalive.Notifier = (*OwnerNotifier)(nil)

func NewOwnerNotifier(q Enqueuer, log logx.Logger) *OwnerNotifier {
	return &OwnerNotifier{q: q, log: log, slots: sizedwaitgroup.New(fallbackSends)}
}

// SetFallback routes messages straight to s when the queue reports ErrDisabled.
func (o *OwnerNotifier) SetFallback(s Sender) { o.direct = s }

func (o *OwnerNotifier) Notify(ctx context.Context, owner keepalive.Owner, text string, action *keepalive.Action) {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if action != nil {
		opt.Buttons = [][]kit.Button{{{Text: action.Text, Data: action.Data}}}
	}
	n := kit.Notification{
		Channel: "telegram",
		Target:  kit.ChatTarget{ChatID: int64(owner)},
		Text:    text,
		Options: opt,
	}
	err := o.q.Notify(context.WithoutCancel(ctx), n)
	if errors.Is(err, ErrDisabled) && o.direct != nil {
		o.sendDirect(context.WithoutCancel(ctx), owner, n)
		return
	}
	if err != nil {
		o.log.Warn("notification not queued", logx.Int64("owner", int64(owner)), logx.Err(err))
	}
}

// sendDirect hands n to the fallback sender without waiting for it.
func (o *OwnerNotifier) sendDirect(ctx context.Context, owner keepalive.Owner, n kit.Notification) {
	direct := o.direct
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		o.slots.Add()
		defer o.slots.Done()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := direct.SendText(sctx, n.Target, n.Text, n.Options); err != nil {
			o.log.Warn("notification send failed", logx.Int64("owner", int64(owner)), logx.Err(err))
		}
	}()
}

// Wait blocks until direct sends started so far have finished or ctx ends.
func (o *OwnerNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
