// Package transport wraps a Messenger with bounded retries and outage/recovery notifications.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/metrics"
)

// ErrExhausted is returned when a transient failure persists past the retry bound.
var ErrExhausted = errors.New("messenger transport exhausted retries")

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type Config struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Retrying is a chat.Messenger that retries transient failures of the wrapped Messenger.
type Retrying struct {
	next     chat.Messenger
	cfg      Config
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	failing bool
}

func NewRetrying(next chat.Messenger, cfg Config, notifier Notifier, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, cfg: cfg.withDefaults(), notifier: notifier, logger: logger}
}

func (r *Retrying) SendPrompt(ctx context.Context, recipient, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	return retry(ctx, r, "send_prompt", func() (chat.MessageRef, error) {
		return r.next.SendPrompt(ctx, recipient, text, kb)
	})
}

func (r *Retrying) EditMessage(ctx context.Context, ref chat.MessageRef, text string, kb chat.Keyboard) error {
	_, err := retry(ctx, r, "edit_message", func() (struct{}, error) {
		return struct{}{}, r.next.EditMessage(ctx, ref, text, kb)
	})
	return err
}

// Failing reports whether the last call ended in a transient failure.
func (r *Retrying) Failing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failing
}

func retry[T any](ctx context.Context, r *Retrying, op string, call func() (T, error)) (T, error) {
	attempt := func() (T, error) {
		v, err := call()
		if err == nil {
			r.recovered(ctx)
			return v, nil
		}
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		r.failed(ctx, op, err)
		return v, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.cfg.MaxDelay,
	}
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.TransportRetries.WithLabelValues(op).Inc()
			r.logger.Warn("messenger call failed, retrying", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err != nil && IsTransient(err) {
		r.logger.Error("messenger call exhausted retries", zap.String("op", op), zap.Error(err))
		return v, fmt.Errorf("%w: %s: %w", ErrExhausted, op, err)
	}
	return v, err
}

func (r *Retrying) failed(ctx context.Context, op string, err error) {
	r.mu.Lock()
	first := !r.failing
	r.failing = true
	r.mu.Unlock()
	if !first {
		return
	}
	metrics.TransportOutages.Inc()
	r.notify(ctx, "🔴 Conexión con el chat caída", fmt.Sprintf("%s falló: %v", op, err))
}

func (r *Retrying) recovered(ctx context.Context) {
	r.mu.Lock()
	was := r.failing
	r.failing = false
	r.mu.Unlock()
	if was {
		r.notify(ctx, "🟢 Conexión con el chat restablecida", "Los mensajes vuelven a enviarse.")
	}
}

func (r *Retrying) notify(ctx context.Context, subject, body string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(context.WithoutCancel(ctx), subject, body); err != nil {
		r.logger.Warn("notifier failed", zap.String("subject", subject), zap.Error(err))
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient tags err as a retryable transport failure.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports network-level failures: marked errors, net timeouts and dial/connection errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
