package dialog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/metrics"
)

var ErrAmbiguous = errors.New("several dialogs are waiting for an amount")

// Request asks an operator to classify a transaction.
type Request struct {
	Recipient   string
	Payer       string
	Transaction ledger.Transaction
}

// Outcome of a finished dialog. Empty Splits means the operator declined or cancelled.
type Outcome struct {
	Handle  Handle
	Message chat.MessageRef
	Splits  []ledger.Split
}

func (o *Outcome) Declined() bool { return len(o.Splits) == 0 }

// Service runs classification dialogs over a Messenger.
type Service struct {
	machine   *Machine
	registry  *Registry
	messenger chat.Messenger
	logger    *zap.Logger
}

func NewService(machine *Machine, messenger chat.Messenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		machine:   machine,
		registry:  NewRegistry(logger),
		messenger: messenger,
		logger:    logger,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

// Ask opens a dialog, prompts the operator and blocks until the dialog resolves or ctx ends.
// A saved dialog stays open until Finish is called with the final text.
func (s *Service) Ask(ctx context.Context, req Request) (*Outcome, error) {
	if !req.Transaction.Amount.IsPositive() {
		return nil, fmt.Errorf("ask: amount must be positive, got %s", req.Transaction.Amount)
	}
	h, res := s.registry.Open(State{
		Recipient: req.Recipient,
		Payer:     req.Payer,
		Tx:        req.Transaction,
		Total:     req.Transaction.Amount,
	})
	log := s.logger.With(zap.String("handle", string(h)), zap.String("operator", req.Payer))

	var reply Reply
	if err := s.registry.Update(h, func(st *State) error {
		reply = s.machine.Begin(st)
		return nil
	}); err != nil {
		s.registry.Close(h)
		return nil, err
	}

	ref, err := s.messenger.SendPrompt(ctx, req.Recipient, reply.Text, reply.Keyboard)
	if err != nil {
		s.registry.Close(h)
		return nil, fmt.Errorf("send prompt: %w", err)
	}
	if err := s.registry.Bind(h, ref); err != nil {
		return nil, err
	}
	log.Info("dialog opened", zap.String("amount", req.Transaction.Amount.String()))

	splits, err := res.Wait(ctx)
	if err != nil {
		s.registry.Close(h)
		log.Warn("dialog abandoned", zap.Error(err))
		return nil, err
	}
	return &Outcome{Handle: h, Message: ref, Splits: splits}, nil
}

// HandleButton applies a button press on a prompt message. Presses on unknown or closed
// dialogs render an expiry notice on that message and return ErrExpired.
func (s *Service) HandleButton(ctx context.Context, ref chat.MessageRef, token string) error {
	h, err := s.registry.HandleFor(ref.MessageID)
	if err != nil {
		return s.expired(ctx, ref)
	}
	in, err := ParseToken(token)
	if err != nil {
		s.logger.Info("ignoring malformed token", zap.String("handle", string(h)), zap.String("token", token))
		return err
	}
	err = s.apply(ctx, h, in, true)
	if errors.Is(err, ErrExpired) {
		return s.expired(ctx, ref)
	}
	return err
}

// HandleText routes a free-text reply. It reports whether a dialog consumed the text.
func (s *Service) HandleText(ctx context.Context, channelID, replyToMessageID, text string) (bool, error) {
	var replyTo Handle
	if replyToMessageID != "" {
		if h, err := s.registry.HandleFor(replyToMessageID); err == nil {
			replyTo = h
		}
	}
	waiting := s.registry.WaitingAmount(channelID)
	d := RouteText(replyTo, waiting)
	switch d.Route {
	case RouteNone:
		return false, nil
	case RouteAmbiguous:
		s.logger.Warn("ambiguous amount reply dropped", zap.String("channel", channelID), zap.Int("waiting", len(waiting)))
		return false, ErrAmbiguous
	}

	err := s.apply(ctx, d.Handle, EnterAmount{Raw: text}, false)
	if errors.Is(err, ErrUnexpectedInput) || errors.Is(err, ErrExpired) {
		return false, nil
	}
	return err == nil, err
}

// Finish shows the final text on a saved dialog and closes it.
func (s *Service) Finish(ctx context.Context, h Handle, text string) error {
	return s.registry.Serialize(h, func() error {
		ref, err := s.registry.Ref(h)
		if err != nil {
			return err
		}
		if err := s.registry.Update(h, func(st *State) error {
			st.Status = StatusTerminal
			return nil
		}); err != nil {
			return err
		}
		s.registry.Close(h)
		return s.messenger.EditMessage(ctx, ref, text, nil)
	})
}

// Pending lists open dialogs.
func (s *Service) Pending() []Summary {
	return s.registry.List()
}

// apply runs one event on h. Events on the same dialog take turns, so a prompt edit
// always lands before the next transition on that dialog. With refresh set, an input the
// current status does not accept re-renders the prompt, which may be showing stale buttons.
func (s *Service) apply(ctx context.Context, h Handle, in Input, refresh bool) error {
	return s.registry.Serialize(h, func() error {
		err := s.step(ctx, h, in)
		if refresh && errors.Is(err, ErrUnexpectedInput) {
			if rerr := s.rerender(ctx, h); rerr != nil {
				s.logger.Warn("failed to re-render prompt", zap.String("handle", string(h)), zap.Error(rerr))
			}
		}
		return err
	})
}

func (s *Service) rerender(ctx context.Context, h Handle) error {
	st, err := s.registry.Lookup(h)
	if err != nil {
		return err
	}
	reply, ok := s.machine.Render(&st)
	if !ok {
		return nil
	}
	ref, err := s.registry.Ref(h)
	if err != nil {
		return err
	}
	return s.messenger.EditMessage(ctx, ref, reply.Text, reply.Keyboard)
}

func (s *Service) step(ctx context.Context, h Handle, in Input) error {
	log := s.logger.With(zap.String("handle", string(h)))

	var (
		reply Reply
		from  Status
		to    Status
	)
	err := s.registry.Update(h, func(st *State) error {
		from = st.Status
		r, err := s.machine.Apply(st, in)
		if err != nil {
			return err
		}
		reply, to = r, st.Status
		return nil
	})
	switch {
	case errors.Is(err, ErrUnexpectedInput):
		log.Info("ignoring input", zap.Error(err))
		return err
	case err != nil:
		log.Error("dialog transition failed", zap.Error(err))
		return err
	}
	log.Debug("dialog transition", zap.Stringer("from", from), zap.Stringer("status", to))

	ref, err := s.registry.Ref(h)
	if err != nil {
		return err
	}
	editErr := s.messenger.EditMessage(ctx, ref, reply.Text, reply.Keyboard)
	if editErr != nil {
		log.Error("failed to update prompt", zap.Error(editErr))
	}

	switch reply.Outcome {
	case OutcomeCancelled:
		s.settle(h, nil)
		s.registry.Close(h)
		metrics.DialogOutcomes.WithLabelValues("cancelled").Inc()
	case OutcomeSaved:
		s.settle(h, reply.Splits)
		metrics.DialogOutcomes.WithLabelValues("saved").Inc()
	}
	return editErr
}

func (s *Service) settle(h Handle, splits []ledger.Split) {
	res, err := s.registry.result(h)
	if err != nil {
		return
	}
	if err := res.resolve(splits); err != nil {
		s.logger.Error("dialog resolved twice", zap.String("handle", string(h)))
	}
}

func (s *Service) expired(ctx context.Context, ref chat.MessageRef) error {
	s.logger.Info("event for expired dialog", zap.String("message", ref.MessageID))
	if err := s.messenger.EditMessage(ctx, ref, textExpired, nil); err != nil {
		return fmt.Errorf("%w (render: %v)", ErrExpired, err)
	}
	return ErrExpired
}
