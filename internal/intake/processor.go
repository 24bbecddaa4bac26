// Package intake turns collected transactions into ledger entries through a classification dialog.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/inflight"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/metrics"
	"github.com/susu3304/gastobot/internal/money"
	"github.com/susu3304/gastobot/internal/transport"
)

var (
	ErrPartialFailure = errors.New("some splits were not saved")
	ErrInFlight       = errors.New("transaction is already being classified")
	ErrHalted         = errors.New("intake halted after messenger outage")
)

type Operator struct {
	Name      string
	Recipient string
}

// Item is one collected transaction waiting for classification.
type Item struct {
	ID          string
	Operator    Operator
	Transaction ledger.Transaction
}

type Classifier interface {
	Ask(ctx context.Context, req dialog.Request) (*dialog.Outcome, error)
	Finish(ctx context.Context, h dialog.Handle, text string) error
}

// Source is where items come from. MarkConsumed runs only after every split is saved.
type Source interface {
	MarkConsumed(ctx context.Context, id string) error
}

type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type FailedSplit struct {
	Split ledger.Split
	Err   error
}

type Report struct {
	Declined bool
	Saved    []ledger.Split
	Failed   []FailedSplit
}

type Processor struct {
	classifier Classifier
	ledger     ledger.Ledger
	source     Source
	guard      inflight.Guard
	notifier   Notifier
	logger     *zap.Logger
	holdFor    time.Duration
	halted     atomic.Bool
}

func NewProcessor(c Classifier, l ledger.Ledger, src Source, g inflight.Guard, n Notifier, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if g == nil {
		g = inflight.NewLocal()
	}
	return &Processor{
		classifier: c,
		ledger:     l,
		source:     src,
		guard:      g,
		notifier:   n,
		logger:     logger,
		holdFor:    24 * time.Hour,
	}
}

// Halted reports whether intake stopped after the messenger exhausted its retries.
func (p *Processor) Halted() bool { return p.halted.Load() }

// Resume clears the halted flag.
func (p *Processor) Resume() { p.halted.Store(false) }

// Process asks the operator to classify item and writes the resulting splits.
// Ledger writes are at-least-once: a partial failure keeps the item pending and
// already written entries are not rolled back.
func (p *Processor) Process(ctx context.Context, item Item) (Report, error) {
	if p.halted.Load() {
		return Report{}, ErrHalted
	}
	log := p.logger.With(zap.String("source", item.ID), zap.String("operator", item.Operator.Name))

	release, err := p.guard.Acquire(ctx, item.ID, p.holdFor)
	if errors.Is(err, inflight.ErrBusy) {
		return Report{}, ErrInFlight
	}
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release in-flight guard", zap.Error(err))
		}
	}()

	out, err := p.classifier.Ask(ctx, dialog.Request{
		Recipient:   item.Operator.Recipient,
		Payer:       item.Operator.Name,
		Transaction: item.Transaction,
	})
	if err != nil {
		p.checkOutage(ctx, err)
		return Report{}, fmt.Errorf("classify %s: %w", item.ID, err)
	}
	if out.Declined() {
		log.Info("transaction declined")
		return Report{Declined: true}, p.consume(ctx, item.ID)
	}

	var report Report
	for _, split := range out.Splits {
		if err := p.ledger.AppendEntry(ctx, item.Transaction.WithAmount(split.Amount), split); err != nil {
			metrics.LedgerWrites.WithLabelValues("error").Inc()
			log.Error("ledger write failed", zap.String("category", split.Label()), zap.Error(err))
			report.Failed = append(report.Failed, FailedSplit{Split: split, Err: err})
			continue
		}
		metrics.LedgerWrites.WithLabelValues("ok").Inc()
		report.Saved = append(report.Saved, split)
	}

	if len(report.Failed) > 0 {
		if err := p.classifier.Finish(ctx, out.Handle, failureText(report)); err != nil {
			p.checkOutage(ctx, err)
			log.Error("failed to show save error", zap.Error(err))
		}
		return report, fmt.Errorf("%w: %d of %d", ErrPartialFailure, len(report.Failed), len(out.Splits))
	}

	if err := p.classifier.Finish(ctx, out.Handle, p.successText(ctx, report.Saved)); err != nil {
		p.checkOutage(ctx, err)
		log.Error("failed to show confirmation", zap.Error(err))
	}
	log.Info("transaction saved", zap.Int("splits", len(report.Saved)))
	return report, p.consume(ctx, item.ID)
}

func (p *Processor) consume(ctx context.Context, id string) error {
	if p.source == nil || id == "" {
		return nil
	}
	if err := p.source.MarkConsumed(ctx, id); err != nil {
		return fmt.Errorf("mark %s consumed: %w", id, err)
	}
	return nil
}

func (p *Processor) checkOutage(ctx context.Context, err error) {
	if !errors.Is(err, transport.ErrExhausted) || p.halted.Swap(true) {
		return
	}
	p.logger.Error("intake halted", zap.Error(err))
	if p.notifier == nil {
		return
	}
	if nerr := p.notifier.Notify(context.WithoutCancel(ctx), "⛔ Registro de gastos detenido", err.Error()); nerr != nil {
		p.logger.Warn("notifier failed", zap.Error(nerr))
	}
}

func (p *Processor) successText(ctx context.Context, saved []ledger.Split) string {
	var b strings.Builder
	b.WriteString("✅ Guardado")
	for i, s := range saved {
		fmt.Fprintf(&b, "\n%d. %s (%s, %s): %s", i+1, s.Label(), s.Scope, s.Kind, money.Format(s.Amount))
		total, err := p.ledger.AccumulatedTotal(ctx, ledger.ForSplit(s))
		if err != nil {
			p.logger.Warn("accumulated total unavailable", zap.String("category", s.Label()), zap.Error(err))
			b.WriteString("\n   📊 Acumulado del ciclo: no disponible")
			continue
		}
		fmt.Fprintf(&b, "\n   📊 Acumulado del ciclo: %s", money.Format(total))
	}
	return b.String()
}

func failureText(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ No se pudieron guardar %d de %d partes. La transacción queda pendiente.",
		len(r.Failed), len(r.Failed)+len(r.Saved))
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "\n❌ %s: %s", f.Split.Label(), money.Format(f.Split.Amount))
	}
	for _, s := range r.Saved {
		fmt.Fprintf(&b, "\n✅ %s: %s", s.Label(), money.Format(s.Amount))
	}
	return b.String()
}
