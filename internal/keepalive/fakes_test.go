package keepalive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type fakeScheduler struct {
	mu       sync.Mutex
	next     Handle
	jobs     map[Handle]func()
	seen     map[Handle]func()
	canceled []Handle
	err      error
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{jobs: map[Handle]func(){}, seen: map[Handle]func(){}} }

func (s *fakeScheduler) Every(_ time.Duration, job func()) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	s.jobs[s.next] = job
	s.seen[s.next] = job
	return s.next, nil
}

func (s *fakeScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, h)
	s.canceled = append(s.canceled, h)
}

// fire runs one tick of h synchronously; false when h was canceled.
func (s *fakeScheduler) fire(h Handle) bool {
	s.mu.Lock()
	job, ok := s.jobs[h]
	s.mu.Unlock()
	if !ok {
		return false
	}
	job()
	return true
}

// inFlight returns h's job even after Cancel, like a tick that already fired.
func (s *fakeScheduler) inFlight(h Handle) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[h]
}

func (s *fakeScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type sent struct {
	owner  Owner
	text   string
	action *Action
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []sent
}

func (n *recordingNotifier) Notify(_ context.Context, owner Owner, text string, action *Action) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sent{owner: owner, text: text, action: action})
}

func (n *recordingNotifier) all() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.msgs...)
}

// count returns how many messages contain substr.
func (n *recordingNotifier) count(substr string) int {
	c := 0
	for _, m := range n.all() {
		if strings.Contains(m.text, substr) {
			c++
		}
	}
	return c
}

// funcProber answers every probe with fn.
type funcProber struct {
	mu    sync.Mutex
	calls int
	fn    func(target string) Result
}

func (p *funcProber) Probe(_ context.Context, target string) Result {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(target)
}

// gateProber blocks each probe until the test hands it a result.
type gateProber struct{ results chan Result }

func newGateProber() *gateProber { return &gateProber{results: make(chan Result)} }

func (p *gateProber) Probe(ctx context.Context, _ string) Result {
	select {
	case r := <-p.results:
		return r
	case <-ctx.Done():
		return Result{Reason: ctx.Err().Error()}
	}
}

var errRefused = errors.New("connection refused")

func failure() Result { return Result{Reason: errRefused.Error()} }
