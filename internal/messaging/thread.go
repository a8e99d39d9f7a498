package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

// ThreadState is the load state of a Thread
type ThreadState int

const (
	ThreadLoading ThreadState = iota
	ThreadReady
	ThreadFailed
)

func (s ThreadState) String() string {
	switch s {
	case ThreadLoading:
		return "loading"
	case ThreadReady:
		return "ready"
	case ThreadFailed:
		return "failed"
	}
	return "unknown"
}

var ErrThreadClosed = apperr.FailedPrecondition("thread is closed")

const markReadTimeout = 5 * time.Second

// Thread is the live, ordered list of messages one viewer sees with one
// counterparty, optionally scoped to a trip. It merges its initial load with
// change events by message id, so a row is never shown twice and an event
// that races the load is not lost.
type Thread struct {
	svc          *Service
	viewer       uuid.UUID
	counterparty uuid.UUID
	tripID       *uuid.UUID

	mu       sync.Mutex
	messages []*models.Message // created_at ascending
	pending  map[uuid.UUID]*models.Message
	state    ThreadState
	loadErr  error
	loads    int
	closed   bool
	onChange func([]*models.Message)
	subs     realtime.Group
}

// OpenThread subscribes to the viewer's message events. Call Load to fetch
// the history; events received before then are merged into the result.
func OpenThread(hub *realtime.Hub, svc *Service, viewer, counterparty uuid.UUID, tripID *uuid.UUID) (*Thread, error) {
	if err := validateParticipants(viewer, counterparty); err != nil {
		return nil, err
	}

	t := &Thread{
		svc:          svc,
		viewer:       viewer,
		counterparty: counterparty,
		pending:      make(map[uuid.UUID]*models.Message),
	}
	if tripID != nil {
		id := *tripID
		t.tripID = &id
	}

	// Inserts are only taken from the receiver topic; the sender topic
	// carries updates to the viewer's own messages.
	subs, err := hub.SubscribeAll([]realtime.Topic{
		realtime.MessagesTo(viewer),
		realtime.MessagesFrom(viewer),
	}, t.handle)
	if err != nil {
		return nil, apperr.Transient("subscribe", err)
	}
	t.subs = subs
	return t, nil
}

// OnChange registers fn to receive a snapshot after every change
func (t *Thread) OnChange(fn func([]*models.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Load fetches the thread and merges it with what arrived meanwhile. On
// failure the thread enters ThreadFailed and may be loaded again.
func (t *Thread) Load(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	t.loads++
	attempt := t.loads
	t.state = ThreadLoading
	t.loadErr = nil
	t.mu.Unlock()

	rows, err := t.svc.LoadThread(ctx, t.viewer, t.counterparty, t.tripID)

	t.mu.Lock()
	if t.closed || attempt != t.loads {
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		t.state = ThreadFailed
		t.loadErr = err
		t.mu.Unlock()
		return err
	}

	for _, m := range rows {
		if p, ok := t.pending[m.ID]; ok {
			m.Merge(p)
		}
		if existing := t.find(m.ID); existing != nil {
			existing.Merge(m)
			continue
		}
		t.insert(m)
	}
	t.pending = make(map[uuid.UUID]*models.Message)
	t.prune()
	t.state = ThreadReady
	snap, fn := t.snapshot(), t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

func (t *Thread) accepts(m *models.Message) bool {
	return m.ReceiverID == t.viewer &&
		m.SenderID == t.counterparty &&
		m.InTrip(t.tripID) &&
		m.VisibleTo(t.viewer)
}

// find returns the local row with id; caller holds mu
func (t *Thread) find(id uuid.UUID) *models.Message {
	for _, m := range t.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// insert places m by created_at after any rows with the same timestamp;
// caller holds mu
func (t *Thread) insert(m *models.Message) {
	i := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(m.CreatedAt)
	})
	t.messages = append(t.messages, nil)
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
}

// prune drops rows the viewer can no longer see; caller holds mu
func (t *Thread) prune() {
	kept := t.messages[:0]
	for _, m := range t.messages {
		if m.VisibleTo(t.viewer) {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(t.messages); i++ {
		t.messages[i] = nil
	}
	t.messages = kept
}

// apply folds an updated row into the local set; caller holds mu
func (t *Thread) apply(m *models.Message) bool {
	existing := t.find(m.ID)
	if existing == nil {
		if t.state == ThreadLoading {
			if p, ok := t.pending[m.ID]; ok {
				p.Merge(m)
			} else {
				t.pending[m.ID] = m
			}
		}
		return false
	}
	before := *existing
	existing.Merge(m)
	if !existing.VisibleTo(t.viewer) {
		t.prune()
		return true
	}
	return *existing != before
}

func (t *Thread) snapshot() []*models.Message {
	out := make([]*models.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

func (t *Thread) handle(e realtime.Event) {
	if e.Message == nil {
		return
	}
	m := e.Message.Clone()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	var changed, markRead bool
	switch e.Kind {
	case realtime.Insert:
		if !t.accepts(m) || t.find(m.ID) != nil {
			t.mu.Unlock()
			return
		}
		t.insert(m)
		changed = true
		markRead = !m.Read
	case realtime.Update:
		changed = t.apply(m)
	}
	snap, fn := t.snapshot(), t.onChange
	t.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
	// The message is shown before it is marked read.
	if markRead {
		t.markRead(m.ID)
	}
}

func (t *Thread) markRead(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()

	if err := t.svc.MarkRead(ctx, t.viewer, []uuid.UUID{id}); err != nil {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	existing := t.find(id)
	if existing == nil || existing.Read {
		t.mu.Unlock()
		return
	}
	existing.Read = true
	snap, fn := t.snapshot(), t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// Send stores content and adds the stored message to the thread. On failure
// the thread is unchanged and the error is returned so the draft can be kept.
func (t *Thread) Send(ctx context.Context, content string) (*models.Message, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrThreadClosed
	}

	msg, err := t.svc.Send(ctx, t.viewer, t.counterparty, content, t.tripID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed || t.find(msg.ID) != nil {
		t.mu.Unlock()
		return msg, nil
	}
	t.insert(msg.Clone())
	snap, fn := t.snapshot(), t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return msg, nil
}

// Delete hides a message of this thread from the viewer. Ids that are not in
// the thread return apperr.ErrMessageNotFound without calling the backend.
func (t *Thread) Delete(ctx context.Context, messageID uuid.UUID) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	m := t.find(messageID)
	if m == nil {
		t.mu.Unlock()
		return apperr.ErrMessageNotFound
	}
	role, _ := m.RoleOf(t.viewer)
	t.mu.Unlock()

	updated, err := t.svc.setDeleted(ctx, messageID, role)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	changed := t.apply(updated)
	snap, fn := t.snapshot(), t.onChange
	t.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
	return nil
}

// Messages returns a copy of the visible messages, oldest first
func (t *Thread) Messages() []*models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error of the last failed load
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

// Close releases the subscriptions. Results of calls still in flight are
// discarded.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subs
	t.mu.Unlock()

	subs.Unsubscribe()
}
