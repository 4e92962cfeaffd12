// ABOUTME: TTL and size bounded tracker of delivered message ids per conversation
// ABOUTME: Distinguishes a message's first frame from its later streamed chunks

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Delivery classifies a frame by whether its id was seen before.
type Delivery int

const (
	// First is the first frame seen for an id.
	First Delivery = iota
	// Repeat is any later frame for an id still remembered.
	Repeat
)

func (d Delivery) String() string {
	if d == First {
		return "first"
	}
	return "repeat"
}

type key struct {
	conversation string
	id           string
}

type entry struct {
	key  key
	seen time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	byConv  map[string]map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a tracker and starts its pruning goroutine.
func New(ttl time.Duration, maxSize int) *Tracker {
	t := newTracker(ttl, maxSize, time.Now)
	go t.pruneLoop()
	return t
}

func newTracker(ttl time.Duration, maxSize int, now func() time.Time) *Tracker {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Tracker{
		byConv:  make(map[string]map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Deliver records a frame for (conversation, id) and reports whether it is
// the first one. Checking and recording happen under one lock.
func (t *Tracker) Deliver(conversation, id string) Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if elem, ok := t.lookup(key{conversation, id}); ok {
		e := elem.Value.(*entry)
		if now.Sub(e.seen) < t.ttl {
			e.seen = now
			t.order.MoveToBack(elem)
			return Repeat
		}
		t.removeLocked(elem)
	}

	if t.order.Len() >= t.maxSize {
		t.removeLocked(t.order.Front())
	}
	k := key{conversation, id}
	elem := t.order.PushBack(&entry{key: k, seen: now})
	ids, ok := t.byConv[conversation]
	if !ok {
		ids = make(map[string]*list.Element)
		t.byConv[conversation] = ids
	}
	ids[id] = elem
	return First
}

// Seen reports whether (conversation, id) is remembered and not expired.
func (t *Tracker) Seen(conversation, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.lookup(key{conversation, id})
	if !ok {
		return false
	}
	return t.now().Sub(elem.Value.(*entry).seen) < t.ttl
}

// Forget drops every id remembered for conversation.
func (t *Tracker) Forget(conversation string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, elem := range t.byConv[conversation] {
		t.order.Remove(elem)
	}
	delete(t.byConv, conversation)
}

// Len returns the number of remembered ids.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *Tracker) lookup(k key) (*list.Element, bool) {
	elem, ok := t.byConv[k.conversation][k.id]
	return elem, ok
}

// removeLocked must be called with mu held.
func (t *Tracker) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	e := t.order.Remove(elem).(*entry)
	ids := t.byConv[e.key.conversation]
	delete(ids, e.key.id)
	if len(ids) == 0 {
		delete(t.byConv, e.key.conversation)
	}
}

func (t *Tracker) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.prune()
		case <-t.done:
			return
		}
	}
}

// prune drops expired entries. Entries are ordered by last delivery, so it
// stops at the first live one.
func (t *Tracker) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for elem := t.order.Front(); elem != nil; elem = t.order.Front() {
		if now.Sub(elem.Value.(*entry).seen) < t.ttl {
			return
		}
		t.removeLocked(elem)
	}
}

// Close stops the pruning goroutine. It is safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
