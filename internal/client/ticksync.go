package client

import (
	"sync"
	"time"
)

// tickCallback guards one registration. The per-callback mutex is what makes
// removal linearizable with dispatch: RemoveOnTick acquires it, so by the
// time removal returns any in-flight invocation has finished and no later
// snapshot can re-enter the callback.
type tickCallback struct {
	mu      sync.Mutex
	fn      func(WorldSnapshot)
	removed bool
}

// tickSync owns the tick-callback registry and the one-shot waiters behind
// WaitForTick. dispatch runs on the session's single reader goroutine, so
// snapshots are delivered one at a time in increasing frame order.
type tickSync struct {
	mu      sync.Mutex
	nextID  uint64
	cbs     map[uint64]*tickCallback
	order   []uint64
	waiters map[chan WorldSnapshot]struct{}
}

func newTickSync() *tickSync {
	return &tickSync{
		cbs:     map[uint64]*tickCallback{},
		waiters: map[chan WorldSnapshot]struct{}{},
	}
}

func (t *tickSync) add(fn func(WorldSnapshot)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.cbs[id] = &tickCallback{fn: fn}
	t.order = append(t.order, id)
	return id
}

// remove blocks until any in-flight delivery to this callback has returned.
// Must not be called from inside the callback being removed.
func (t *tickSync) remove(id uint64) {
	t.mu.Lock()
	cb := t.cbs[id]
	if cb != nil {
		delete(t.cbs, id)
		for i, v := range t.order {
			if v == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.removed = true
	cb.mu.Unlock()
}

// dispatch hands the snapshot to every waiter, then to every registered
// callback. Callbacks run outside the registry lock so they may register or
// remove other callbacks.
func (t *tickSync) dispatch(s WorldSnapshot) {
	t.mu.Lock()
	for ch := range t.waiters {
		ch <- s
		delete(t.waiters, ch)
	}
	list := make([]*tickCallback, 0, len(t.cbs))
	for _, id := range t.order {
		list = append(list, t.cbs[id])
	}
	t.mu.Unlock()

	for _, cb := range list {
		cb.mu.Lock()
		if !cb.removed {
			cb.fn(s)
		}
		cb.mu.Unlock()
	}
}

// wait blocks until the next snapshot arrives or the timeout elapses. A
// timed-out waiter is always unregistered before returning.
func (t *tickSync) wait(timeout time.Duration) (WorldSnapshot, error) {
	ch := make(chan WorldSnapshot, 1)
	t.mu.Lock()
	t.waiters[ch] = struct{}{}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-ch:
		return s, nil
	case <-timer.C:
		t.mu.Lock()
		delete(t.waiters, ch)
		t.mu.Unlock()
		// A snapshot may have slipped in between the timer firing and the
		// waiter being unregistered.
		select {
		case s := <-ch:
			return s, nil
		default:
		}
		return WorldSnapshot{}, ErrTimeout
	}
}
