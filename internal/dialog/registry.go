package dialog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/metrics"
)

var (
	ErrExpired         = errors.New("dialog session expired")
	ErrTransitionPanic = errors.New("dialog transition panicked")
)

type entry struct {
	// turn is held for a whole event: the transition and the prompt edit that shows it.
	turn     sync.Mutex
	mu       sync.Mutex
	state    *State
	result   *Result
	ref      chat.MessageRef
	openedAt time.Time
	closed   bool
}

// Registry owns the open dialogs. Each dialog has its own lock and its own state,
// so a transition on one handle never touches another.
type Registry struct {
	mu       sync.RWMutex
	entries  map[Handle]*entry
	messages map[string]Handle
	logger   *zap.Logger
	now      func() time.Time
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries:  make(map[Handle]*entry),
		messages: make(map[string]Handle),
		logger:   logger,
		now:      time.Now,
	}
}

// Open registers a dialog and returns its handle and pending result.
func (r *Registry) Open(initial State) (Handle, *Result) {
	h := Handle(uuid.NewString())
	st := initial.clone()
	st.Handle = h
	st.Status = StatusInit
	e := &entry{state: st, result: newResult(), openedAt: r.now()}

	r.mu.Lock()
	r.entries[h] = e
	r.mu.Unlock()
	metrics.DialogsOpen.Inc()
	return h, e.result
}

// Bind associates the prompt message with the dialog so button presses can find it.
func (r *Registry) Bind(h Handle, ref chat.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h]
	if !ok {
		return ErrExpired
	}
	e.ref = ref
	r.messages[ref.MessageID] = h
	return nil
}

func (r *Registry) get(h Handle) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	if !ok {
		return nil, ErrExpired
	}
	return e, nil
}

// Lookup returns a copy of the dialog state.
func (r *Registry) Lookup(h Handle) (State, error) {
	e, err := r.get(h)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return State{}, ErrExpired
	}
	return *e.state.clone(), nil
}

// HandleFor resolves the dialog that owns a prompt message.
func (r *Registry) HandleFor(messageID string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.messages[messageID]
	if !ok {
		return "", ErrExpired
	}
	return h, nil
}

func (r *Registry) Ref(h Handle) (chat.MessageRef, error) {
	e, err := r.get(h)
	if err != nil {
		return chat.MessageRef{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ref, nil
}

func (r *Registry) result(h Handle) (*Result, error) {
	e, err := r.get(h)
	if err != nil {
		return nil, err
	}
	return e.result, nil
}

// Serialize runs fn holding the dialog's turn, so the next event on h starts only
// after fn has finished.
func (r *Registry) Serialize(h Handle, fn func() error) error {
	e, err := r.get(h)
	if err != nil {
		return err
	}
	e.turn.Lock()
	defer e.turn.Unlock()
	return fn()
}

// Update runs fn on a copy of the dialog state under the dialog's lock and commits the copy
// only when fn returns nil. A panic in fn is recovered and reported as ErrTransitionPanic.
func (r *Registry) Update(h Handle, fn func(*State) error) error {
	e, err := r.get(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExpired
	}
	next := e.state.clone()
	if err := r.safeCall(h, next, fn); err != nil {
		return err
	}
	e.state = next
	return nil
}

func (r *Registry) safeCall(h Handle, st *State, fn func(*State) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("dialog transition panicked", zap.String("handle", string(h)), zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrTransitionPanic, p)
		}
	}()
	return fn(st)
}

// Close removes the dialog. Closing an unknown handle is a no-op.
func (r *Registry) Close(h Handle) {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
		if e.ref.MessageID != "" {
			delete(r.messages, e.ref.MessageID)
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	metrics.DialogsOpen.Dec()
}

// WaitingAmount lists dialogs sent to recipient that currently expect a typed amount.
func (r *Registry) WaitingAmount(recipient string) []Handle {
	var out []Handle
	for _, st := range r.List() {
		if st.Status == StatusWaitingAmount && st.Recipient == recipient {
			out = append(out, st.Handle)
		}
	}
	return out
}

// Summary describes an open dialog for listings.
type Summary struct {
	State
	Message  chat.MessageRef
	OpenedAt time.Time
}

// List returns copies of all open dialogs, oldest first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.closed {
			out = append(out, Summary{State: *e.state.clone(), Message: e.ref, OpenedAt: e.openedAt})
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
