package negotiation

import (
	"context"
	"sync"
	"time"
)

// FetchFunc retrieves the current negotiation record, typically over HTTP
// from the admin console.
type FetchFunc func(ctx context.Context) (Record, error)

// Poller refreshes a negotiation view on a fixed interval while a panel is
// open. Fields the operator is actively editing are not overwritten: a held
// field, and any field released less than the quiet period ago, keeps its
// local value when a remote snapshot lands. The transcript is always
// replaced, since it is append-only.
type Poller struct {
	fetch    FetchFunc
	interval time.Duration
	quiet    time.Duration
	onUpdate func(Record)

	mu       sync.Mutex
	view     Record
	hasView  bool
	held     map[string]bool
	released map[string]time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	now func() time.Time
}

func NewPoller(fetch FetchFunc, interval, quiet time.Duration, onUpdate func(Record)) *Poller {
	return &Poller{
		fetch:    fetch,
		interval: interval,
		quiet:    quiet,
		onUpdate: onUpdate,
		held:     make(map[string]bool),
		released: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Start begins polling. It returns immediately; Stop (or ctx cancellation)
// ends the loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// HoldField suspends remote updates to the named field while the operator is
// typing in it.
func (p *Poller) HoldField(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held[name] = true
	delete(p.released, name)
}

// ReleaseField ends the hold; the field stays suppressed for the quiet period
// after the last input so in-flight snapshots cannot clobber a fresh edit.
func (p *Poller) ReleaseField(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held[name] {
		delete(p.held, name)
		p.released[name] = p.now()
	}
}

// SetLocal records an operator edit into the local view so the next merge
// preserves it.
func (p *Poller) SetLocal(mutate func(*Record)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mutate(&p.view)
	p.hasView = true
}

// View returns the current merged view.
func (p *Poller) View() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view, p.hasView
}

func (p *Poller) tick(ctx context.Context) {
	remote, err := p.fetch(ctx)
	if err != nil {
		return
	}

	p.mu.Lock()
	merged := remote
	if p.hasView {
		now := p.now()
		if p.suppressed("proposedFee", now) {
			merged.ProposedFee = p.view.ProposedFee
		}
		if p.suppressed("agreedFee", now) {
			merged.AgreedFee = p.view.AgreedFee
		}
		if p.suppressed("currency", now) {
			merged.Currency = p.view.Currency
		}
		if p.suppressed("commission", now) {
			merged.Commission = p.view.Commission
		}
	}
	p.view = merged
	p.hasView = true
	onUpdate := p.onUpdate
	p.mu.Unlock()

	if onUpdate != nil {
		onUpdate(merged)
	}
}

// suppressed must be called with the mutex held.
func (p *Poller) suppressed(name string, now time.Time) bool {
	if p.held[name] {
		return true
	}
	if released, ok := p.released[name]; ok {
		if now.Sub(released) < p.quiet {
			return true
		}
		delete(p.released, name)
	}
	return false
}
