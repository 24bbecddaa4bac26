package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/chat"
)

type flakyMessenger struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *flakyMessenger) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakyMessenger) SendPrompt(context.Context, string, string, chat.Keyboard) (chat.MessageRef, error) {
	if err := f.next(); err != nil {
		return chat.MessageRef{}, err
	}
	return chat.MessageRef{ChannelID: "c", MessageID: "m"}, nil
}

func (f *flakyMessenger) EditMessage(context.Context, chat.MessageRef, string, chat.Keyboard) error {
	return f.next()
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) Notify(_ context.Context, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

var netErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

var fast = Config{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func TestRetryThenRecover(t *testing.T) {
	inner := &flakyMessenger{errs: []error{netErr, netErr}}
	n := &recordingNotifier{}
	r := NewRetrying(inner, fast, n, nil)

	ref, err := r.SendPrompt(context.Background(), "c", "hola", nil)
	require.NoError(t, err)
	assert.Equal(t, "m", ref.MessageID)
	assert.Equal(t, 3, inner.calls)
	require.Len(t, n.subjects, 2, "one outage and one recovery")
	assert.Contains(t, n.subjects[0], "caída")
	assert.Contains(t, n.subjects[1], "restablecida")
	assert.False(t, r.Failing())
}

func TestExhaustion(t *testing.T) {
	inner := &flakyMessenger{errs: []error{netErr, netErr, netErr, netErr, netErr}}
	n := &recordingNotifier{}
	r := NewRetrying(inner, fast, n, nil)

	err := r.EditMessage(context.Background(), chat.MessageRef{}, "x", nil)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, inner.calls)
	assert.Len(t, n.subjects, 1, "outage notified once")
	assert.True(t, r.Failing())

	require.NoError(t, r.EditMessage(context.Background(), chat.MessageRef{}, "x", nil))
	assert.Len(t, n.subjects, 2)
	assert.False(t, r.Failing())
}

func TestPermanentErrorNotRetried(t *testing.T) {
	boom := errors.New("invalid form body")
	inner := &flakyMessenger{errs: []error{boom}}
	n := &recordingNotifier{}
	r := NewRetrying(inner, fast, n, nil)

	err := r.EditMessage(context.Background(), chat.MessageRef{}, "x", nil)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, n.subjects)
}

func TestMarkedErrorsAreTransient(t *testing.T) {
	inner := &flakyMessenger{errs: []error{MarkTransient(errors.New("502 bad gateway"))}}
	r := NewRetrying(inner, fast, nil, nil)

	require.NoError(t, r.EditMessage(context.Background(), chat.MessageRef{}, "x", nil))
	assert.Equal(t, 2, inner.calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(netErr))
	assert.True(t, IsTransient(MarkTransient(errors.New("x"))))
	assert.False(t, IsTransient(errors.New("x")))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
	assert.Nil(t, MarkTransient(nil))
}
