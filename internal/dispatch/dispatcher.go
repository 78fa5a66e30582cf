package dispatch

import (
	"context"
	"hash/fnv"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"pingkeeper/internal/keepalive"
	rtsup "pingkeeper/internal/runtime/supervisor"
	"pingkeeper/internal/storage"
	kit "pingkeeper/internal/transport"
	logx "pingkeeper/pkg/logx"
)

// Requests slower than this are logged at info.
const slowRequest = 750 * time.Millisecond

// Registry is the slice of keepalive.Registry the dispatcher drives.
type Registry interface {
	Start(ctx context.Context, owner keepalive.Owner, target string)
	Stop(ctx context.Context, owner keepalive.Owner) bool
	Info(owner keepalive.Owner) (keepalive.TaskInfo, bool)
	Interval() time.Duration
}

// Messenger is the slice of the transport adapter used for replies.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// Auditor records user actions. storage.Store satisfies it.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Config struct {
	// Workers defaults to NumCPU (min 2).
	Workers int
	// QueueSize is per worker.
	QueueSize int
	// Timeout bounds one handler run.
	Timeout time.Duration
}

type Dispatcher struct {
	cfg   Config
	reg   Registry
	out   Messenger
	audit Auditor
	log   logx.Logger
	sups  *rtsup.Registry
	now   func() time.Time

	validate *validator.Validate
	commands map[string]command

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	shards  []chan func()
}

type command struct {
	name   string
	desc   string
	menu   bool
	handle HandlerFunc
}

type Option func(*Dispatcher)

func WithAuditor(a Auditor) Option { return func(d *Dispatcher) { d.audit = a } }

func WithLogger(l logx.Logger) Option { return func(d *Dispatcher) { d.log = l } }

// WithSupervisors publishes the worker supervisor for health output.
func WithSupervisors(r *rtsup.Registry) Option { return func(d *Dispatcher) { d.sups = r } }

func New(cfg Config, reg Registry, out Messenger, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 2)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	d := &Dispatcher{
		cfg:      cfg,
		reg:      reg,
		out:      out,
		log:      logx.Nop(),
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With(logx.String("comp", "dispatch"))
	d.commands = map[string]command{}
	for _, c := range []command{
		{name: "start", desc: "start monitoring a URL, or show help", menu: true, handle: d.handleStart},
		{name: "ping", desc: "start monitoring a URL", menu: true, handle: d.handlePing},
		{name: "status", desc: "show what is being monitored", menu: true, handle: d.handleStatus},
		{name: "stop", desc: "stop monitoring", menu: true, handle: d.handleStop},
		{name: "help", desc: "show help", menu: true, handle: d.handleHelp},
	} {
		d.commands[c.name] = c
	}
	return d
}

// MenuCommands lists the commands shown in the Telegram menu.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	order := []string{"ping", "status", "stop", "help", "start"}
	out := make([]kit.BotCommand, 0, len(order))
	for _, name := range order {
		if c, ok := d.commands[name]; ok && c.menu {
			out = append(out, kit.BotCommand{Command: c.name, Description: c.desc})
		}
	}
	return out
}

// UpdateMenu pushes MenuCommands when the adapter supports it.
func (d *Dispatcher) UpdateMenu(ctx context.Context, up kit.CommandMenuUpdater) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, d.MenuCommands())
}

func (d *Dispatcher) Supervisor() *rtsup.Supervisor {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return nil
	}
	return d.sup
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		rtsup.WithCancelOnError(false),
	)
	shards := make([]chan func(), d.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(), d.cfg.QueueSize)
	}

	d.runMu.Lock()
	d.sup = sup
	d.shards = shards
	d.running = true
	d.runMu.Unlock()
	d.sups.Set("dispatch", sup)

	for i, jobs := range shards {
		idx := i
		q := jobs
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			return d.workerLoop(c, q)
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	d.log.Info("dispatcher started", logx.Int("workers", len(shards)), logx.Int("queue_per_worker", d.cfg.QueueSize))

	defer func() {
		d.runMu.Lock()
		d.running = false
		for _, q := range shards {
			close(q)
		}
		d.runMu.Unlock()

		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.sups.Delete("dispatch")
		d.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.Route(ctx, up)
		}
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, jobs <-chan func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			job()
		}
	}
}

// enqueue hands job to the shard owning key. It never blocks.
func (d *Dispatcher) enqueue(key int64, job func()) bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running || len(d.shards) == 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(key, 10)))
	q := d.shards[int(h.Sum32()%uint32(len(d.shards)))]
	select {
	case q <- job:
		return true
	default:
		return false
	}
}

// Route dispatches one update. Handlers run on the worker pool.
func (d *Dispatcher) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		d.routeMessage(ctx, up)
	case kit.UpdateCallback:
		d.routeCallback(ctx, up)
	}
}

// parseCommand splits "/cmd@bot arg..." into a lowercase name and args.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), parts[1:], true
}

func (d *Dispatcher) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	// Plain text gets the unknown-command reply too.
	label, h := "text", d.handleUnknown
	name, args, ok := parseCommand(msg.Text)
	if ok {
		label = "/" + name
		if cmd, known := d.commands[name]; known {
			h = cmd.handle
		}
	}
	req := d.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, label)
	req.Username = msg.FromUsername
	req.Args = args

	final := Chain(h, MWPanicRecover(), MWRequestLog(slowRequest), MWTimeout(d.cfg.Timeout))
	if !d.enqueue(msg.FromID, func() { _ = final(ctx, req) }) {
		_, _ = d.out.SendText(ctx, req.Chat, busyText, nil)
	}
}

func (d *Dispatcher) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	req := d.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb")
	req.Payload = cb.Data

	final := Chain(d.handleCallback, MWPanicRecover(), MWRequestLog(slowRequest), MWTimeout(d.cfg.Timeout))
	if !d.enqueue(cb.FromID, func() { _ = final(ctx, req) }) {
		_ = d.out.AnswerCallback(ctx, cb.ID, busyText, false)
	}
}

func (d *Dispatcher) newRequest(up kit.Update, chat kit.ChatTarget, from int64, cmd string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		ReqID:   rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", cmd),
		),
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, req *Request, e storage.AuditEntry) {
	if d.audit == nil {
		return
	}
	e.At = d.now()
	e.RequestID = req.ReqID
	e.ActorID = req.FromID
	e.Username = req.Username
	if err := d.audit.AppendAudit(ctx, e); err != nil {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
}
