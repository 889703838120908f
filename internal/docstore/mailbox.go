package docstore

import (
	"context"
	"sync"

	"github.com/pinreview/backend/internal/models"
)

// mailbox holds the latest undelivered snapshot of one subscriber. A slow
// reader skips intermediate snapshots; each one is the full state, so only
// the newest matters.
type mailbox struct {
	mu     sync.Mutex
	latest *models.Snapshot
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *mailbox) put(snap models.Snapshot) {
	b.mu.Lock()
	b.latest = &snap
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *mailbox) take() (models.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latest == nil {
		return models.Snapshot{}, false
	}
	snap := *b.latest
	b.latest = nil
	return snap, true
}

func (b *mailbox) close() {
	b.once.Do(func() { close(b.done) })
}

// finish replaces any undelivered snapshot with last and closes the
// mailbox. last is still delivered.
func (b *mailbox) finish(last models.Snapshot) {
	b.mu.Lock()
	b.latest = &last
	b.mu.Unlock()
	b.close()
}

// run delivers snapshots on the returned channel until ctx is done or the
// mailbox is closed. A snapshot left at close is delivered before the
// channel closes.
func (b *mailbox) run(ctx context.Context) <-chan models.Snapshot {
	out := make(chan models.Snapshot)
	send := func(snap models.Snapshot) bool {
		select {
		case out <- snap:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(out)
		for {
			closed := false
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				closed = true
			case <-b.signal:
			}
			snap, ok := b.take()
			if ok && !send(snap) {
				return
			}
			if closed {
				return
			}
		}
	}()
	return out
}
