package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

// Update is delivered after every fetch. Err is set when the fetch failed; Status then
// holds the last known value.
type Update struct {
	SafeTitle string
	Status    *Status
	Err       error
	Terminal  bool
}

type Options struct {
	Interval time.Duration
	// OnUpdate is called from the polling goroutine of the book concerned.
	OnUpdate func(Update)
}

type loop struct {
	id     uint64
	cancel context.CancelFunc
}

// Poller runs one independent loop per book key. There is no cap on concurrent loops.
type Poller struct {
	log      *logger.Logger
	fetcher  Fetcher
	interval time.Duration
	onUpdate func(Update)

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	loops  map[string]loop
	states map[string]*Status
	nextID uint64
	closed bool
}

func New(log *logger.Logger, fetcher Fetcher, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		log:      log.With("service", "StatusPoller"),
		fetcher:  fetcher,
		interval: interval,
		onUpdate: opts.OnUpdate,
		ctx:      ctx,
		cancel:   cancel,
		group:    &errgroup.Group{},
		loops:    map[string]loop{},
		states:   map[string]*Status{},
	}
}

// Watch starts polling safeTitle unless a loop is already running or the last known
// status is terminal. It reports whether a new loop was started.
func (p *Poller) Watch(safeTitle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || safeTitle == "" {
		return false
	}
	if _, ok := p.loops[safeTitle]; ok {
		return false
	}
	if p.states[safeTitle].Terminal() {
		return false
	}
	p.startLocked(safeTitle)
	return true
}

// Observe records a status obtained elsewhere, such as a list view, and starts or
// stops the book's loop to match it.
func (p *Poller) Observe(safeTitle string, st *Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || safeTitle == "" {
		return
	}
	p.states[safeTitle] = st
	l, running := p.loops[safeTitle]
	switch {
	case st.Terminal() && running:
		l.cancel()
		delete(p.loops, safeTitle)
	case !st.Terminal() && !running:
		p.startLocked(safeTitle)
	}
}

func (p *Poller) Stop(safeTitle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.loops[safeTitle]; ok {
		l.cancel()
		delete(p.loops, safeTitle)
	}
}

// Active lists the books currently being polled, sorted.
func (p *Poller) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.loops))
	for k := range p.loops {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p *Poller) State(safeTitle string) *Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[safeTitle]
}

// Wait blocks until every loop has ended on its own or been stopped. Watch must not be
// called concurrently with Wait.
func (p *Poller) Wait() error {
	return p.group.Wait()
}

// Close cancels every loop and waits for them to exit. The poller cannot be reused.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	for k, l := range p.loops {
		l.cancel()
		delete(p.loops, k)
	}
	p.mu.Unlock()
	p.cancel()
	return p.group.Wait()
}

func (p *Poller) startLocked(safeTitle string) {
	p.nextID++
	id := p.nextID
	ctx, cancel := context.WithCancel(p.ctx)
	p.loops[safeTitle] = loop{id: id, cancel: cancel}
	immediate := p.states[safeTitle] == nil

	p.group.Go(func() error {
		defer cancel()
		p.run(ctx, safeTitle, id, immediate)
		return nil
	})
}

func (p *Poller) run(ctx context.Context, safeTitle string, id uint64, immediate bool) {
	if immediate && p.poll(ctx, safeTitle, id) {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.poll(ctx, safeTitle, id) {
				return
			}
		}
	}
}

// poll fetches once and reports whether the loop should end.
func (p *Poller) poll(ctx context.Context, safeTitle string, id uint64) bool {
	st, err := p.fetcher.FetchStatus(ctx, safeTitle)
	if ctx.Err() != nil {
		return true
	}

	p.mu.Lock()
	l, ok := p.loops[safeTitle]
	if !ok || l.id != id {
		p.mu.Unlock()
		return true
	}
	if err != nil {
		last := p.states[safeTitle]
		p.mu.Unlock()
		p.log.Warn("Status fetch failed; will retry", "book_safe_title", safeTitle, "error", err)
		p.emit(Update{SafeTitle: safeTitle, Status: last, Err: err})
		return false
	}
	p.states[safeTitle] = st
	terminal := st.Terminal()
	if terminal {
		delete(p.loops, safeTitle)
	}
	p.mu.Unlock()

	if terminal {
		p.log.Debug("Polling stopped", "book_safe_title", safeTitle, "overall_status", st.OverallStatus)
	}
	p.emit(Update{SafeTitle: safeTitle, Status: st, Terminal: terminal})
	return terminal
}

func (p *Poller) emit(u Update) {
	if p.onUpdate != nil {
		p.onUpdate(u)
	}
}
