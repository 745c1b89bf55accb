package coordinator

import "sync"

// mailbox funnels every mutating operation for a given coin_symbol through a
// single goroutine, guaranteeing the per-symbol serial law (§5): no two
// Trade-Coordinator operations for the same symbol are ever observed as
// interleaved. Across symbols there is no ordering guarantee.
type mailbox struct {
	mu      sync.Mutex
	workers map[string]chan func()
}

func newMailbox() *mailbox {
	return &mailbox{workers: make(map[string]chan func())}
}

// run schedules fn on symbol's worker and blocks until it completes,
// returning fn's error. A worker goroutine is started lazily on first use
// and kept alive for the lifetime of the process.
func (m *mailbox) run(symbol string, fn func() error) error {
	ch := m.workerFor(symbol)
	done := make(chan error, 1)
	ch <- func() { done <- fn() }
	return <-done
}

func (m *mailbox) workerFor(symbol string) chan func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.workers[symbol]
	if ok {
		return ch
	}
	ch = make(chan func(), 32)
	m.workers[symbol] = ch
	go func() {
		for job := range ch {
			job()
		}
	}()
	return ch
}
