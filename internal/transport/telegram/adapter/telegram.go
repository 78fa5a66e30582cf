package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "pingkeeper/internal/runtime/supervisor"
	kit "pingkeeper/internal/transport"
	logx "pingkeeper/pkg/logx"
	"pingkeeper/pkg/tgui"
)

type Mode string

const (
	ModeWebhook Mode = "webhook"
	ModePolling Mode = "polling"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type Config struct {
	Token       string
	Mode        Mode
	PollTimeout time.Duration

	// WebhookURL is the full public URL Telegram posts updates to.
	WebhookURL  string
	SecretToken string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool

	// sup owns the adapter goroutines (poll loop, drop reporter).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than Telegram. Reported periodically instead of per update.
	droppedUpdates uint64
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeWebhook
	}
	if cfg.Mode == ModeWebhook && strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("telegram webhook url is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			a.log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.bot = b
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Sender == nil {
			return nil
		}
		up := &kit.Callback{ID: cb.ID, FromID: cb.Sender.ID, Data: cb.Data}
		if m := cb.Message; m != nil && m.Chat != nil {
			up.ChatID = m.Chat.ID
			up.ThreadID = m.ThreadID
			up.MessageID = m.ID
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateCallback, Callback: up})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	switch a.cfg.Mode {
	case ModePolling:
		// getUpdates is refused while a webhook is registered.
		if err := a.bot.RemoveWebhook(); err != nil {
			a.log.Warn("remove webhook failed", logx.Err(err))
		}
		sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
			<-c.Done()
			a.bot.Stop()
		})
		sup.GoRestart("telebot.poll", func(c context.Context) error {
			a.log.Info("polling started")
			a.bot.Start()
			a.log.Info("polling stopped")
			return nil
		},
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			rtsup.WithStopOnCleanExit(false),
		)
	default:
		if err := a.RegisterWebhook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) reportDropped(chanCap int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", chanCap))
	}
}

// RegisterWebhook (re)registers the public webhook URL with Telegram.
func (a *Adapter) RegisterWebhook(ctx context.Context) error {
	if a.cfg.Mode != ModeWebhook {
		return errors.New("telegram: not in webhook mode")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.bot.SetWebhook(&tele.Webhook{
		SecretToken:    a.cfg.SecretToken,
		AllowedUpdates: []string{"message", "callback_query"},
		Endpoint:       &tele.WebhookEndpoint{PublicURL: a.cfg.WebhookURL},
	})
	if err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	a.log.Info("webhook registered", logx.String("url", redactWebhookURL(a.cfg.WebhookURL)))
	return nil
}

// WebhookEndpoint is the registered URL with its secret segment hidden.
func (a *Adapter) WebhookEndpoint() string { return redactWebhookURL(a.cfg.WebhookURL) }

// ServeHTTP accepts Telegram webhook deliveries.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.cfg.SecretToken != "" && r.Header.Get(secretTokenHeader) != a.cfg.SecretToken {
		a.log.Warn("webhook request with bad secret token", logx.String("remote", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var u tele.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&u); err != nil {
		a.log.Debug("webhook decode failed", logx.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	a.bot.ProcessUpdate(u)
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitText(text, textLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		// markup rides on the first chunk only
		if i == 0 {
			so.ReplyMarkup = markup(opt.Buttons)
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		// An empty markup removes the old keyboard.
		ReplyMarkup: markup(opt.Buttons),
	}
	if so.ReplyMarkup == nil {
		so.ReplyMarkup = &tele.ReplyMarkup{}
	}
	chunks := splitText(text, textLimit, opt.ParseMode)
	_, err := a.bot.Edit(m, chunks[0], so)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert})
}

// UpdateMenuCommands publishes the bot's command list (setMyCommands).
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		out = append(out, tele.Command{Text: c.Command, Description: c.Description})
	}
	if err := a.bot.SetCommands(out); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

func markup(rows [][]kit.Button) *tele.ReplyMarkup {
	kb := make([][]tgui.Button, len(rows))
	for i, row := range rows {
		for _, b := range row {
			kb[i] = append(kb[i], tgui.Button{Text: b.Text, Data: b.Data})
		}
	}
	return tgui.Keyboard(kb...)
}

// redactWebhookURL hides the secret path segment from logs.
func redactWebhookURL(u string) string {
	i := strings.LastIndex(u, "/")
	if i < 0 || i == len(u)-1 {
		return u
	}
	return u[:i+1] + "***"
}
