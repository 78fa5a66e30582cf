package dispatch

import (
	"context"
	"errors"

	"pingkeeper/internal/keepalive"
	"pingkeeper/internal/storage"
	kit "pingkeeper/internal/transport"
	logx "pingkeeper/pkg/logx"
	"pingkeeper/pkg/tgui"
)

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// startArgs is deliberately loose: a scheme prefix is all a target needs.
type startArgs struct {
	URL string `validate:"required,startswith=http"`
}

func (d *Dispatcher) reply(ctx context.Context, req *Request, text string, action *keepalive.Action) error {
	opt := *htmlOpts
	if action != nil {
		opt.Buttons = [][]kit.Button{{{Text: action.Text, Data: action.Data}}}
	}
	_, err := d.out.SendText(ctx, req.Chat, text, &opt)
	return err
}

func (d *Dispatcher) handleHelp(ctx context.Context, req *Request) error {
	return d.reply(ctx, req, helpText(d.reg.Interval()), nil)
}

// handleStart shows help without arguments and starts monitoring with one.
func (d *Dispatcher) handleStart(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return d.handleHelp(ctx, req)
	}
	return d.handlePing(ctx, req)
}

func (d *Dispatcher) handlePing(ctx context.Context, req *Request) error {
	args := startArgs{}
	if len(req.Args) > 0 {
		args.URL = req.Args[0]
	}
	if err := d.validate.Struct(args); err != nil {
		req.Logger.Debug("start rejected", logx.String("arg", args.URL), logx.Err(err))
		return d.reply(ctx, req, invalidURLText(), nil)
	}

	d.reg.Start(ctx, req.Owner(), args.URL)
	d.recordAudit(ctx, req, storage.AuditEntry{
		OwnerID: req.FromID,
		Action:  storage.ActionStart,
		Target:  args.URL,
		OK:      true,
	})
	return nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, req *Request) error {
	info, ok := d.reg.Info(req.Owner())
	if !ok {
		return d.reply(ctx, req, keepalive.NotMonitoringText(), nil)
	}
	return d.reply(ctx, req, keepalive.StatusText(info, d.now()), keepalive.StopAction(req.Owner()))
}

func (d *Dispatcher) handleStop(ctx context.Context, req *Request) error {
	info, _ := d.reg.Info(req.Owner())
	if !d.reg.Stop(ctx, req.Owner()) {
		return d.reply(ctx, req, nothingToStopText(), nil)
	}
	d.recordAudit(ctx, req, storage.AuditEntry{
		OwnerID: req.FromID,
		Action:  storage.ActionStop,
		Target:  info.Target,
		OK:      true,
	})
	return nil
}

func (d *Dispatcher) handleUnknown(ctx context.Context, req *Request) error {
	return d.reply(ctx, req, unknownCommandText(), nil)
}

var errForeignOwner = errors.New("stop button belongs to another user")

// handleCallback serves the stop button. The callback is always answered.
func (d *Dispatcher) handleCallback(ctx context.Context, req *Request) error {
	cb := req.Update.Callback
	scope, action, payload, err := tgui.ParseData(req.Payload)
	if err != nil || scope != keepalive.CallbackScope || action != keepalive.CallbackStop {
		req.Logger.Debug("unhandled callback", logx.String("data", req.Payload))
		return d.out.AnswerCallback(ctx, cb.ID, "", false)
	}
	encoded, err := keepalive.ParseOwner(payload)
	if err != nil {
		return d.out.AnswerCallback(ctx, cb.ID, badButtonAnswer, false)
	}

	initiator := req.Owner()
	if initiator != encoded {
		req.Logger.Warn("stop denied: not the task owner",
			logx.Int64("initiator", int64(initiator)),
			logx.Int64("encoded_owner", int64(encoded)),
		)
		d.recordAudit(ctx, req, storage.AuditEntry{
			OwnerID: int64(encoded),
			Action:  storage.ActionDenied,
			Detail:  errForeignOwner.Error(),
		})
		return d.out.AnswerCallback(ctx, cb.ID, deniedAlert, true)
	}

	info, _ := d.reg.Info(initiator)
	if !d.reg.Stop(ctx, initiator) {
		return d.out.AnswerCallback(ctx, cb.ID, nothingAnswer, false)
	}
	d.recordAudit(ctx, req, storage.AuditEntry{
		OwnerID: int64(initiator),
		Action:  storage.ActionStop,
		Target:  info.Target,
		OK:      true,
	})

	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if err := d.out.EditText(ctx, ref, stoppedEditText(), &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		req.Logger.Debug("edit stopped message failed", logx.Err(err))
	}
	return d.out.AnswerCallback(ctx, cb.ID, stoppedAnswer, false)
}
