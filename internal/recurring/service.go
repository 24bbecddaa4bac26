package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/metrics"
	"github.com/susu3304/gastobot/internal/money"
)

var (
	ErrNoSession     = errors.New("no recurring review in progress")
	ErrSessionActive = errors.New("recurring review already in progress")
)

// Session is the state of one operator's review.
type Session struct {
	Operator  string
	Recipient string
	Queue     []Item
	Index     int
	Saved     int
	Status    Status
	Message   chat.MessageRef
}

type session struct {
	mu   sync.Mutex
	done bool
	Session
}

func (s *session) progress() Progress {
	return Progress{Index: s.Index, Saved: s.Saved, Total: len(s.Queue), Done: s.done}
}

type Service struct {
	mu        sync.Mutex
	sessions  map[string]*session
	ledger    ledger.Ledger
	messenger chat.Messenger
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(l ledger.Ledger, m chat.Messenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  make(map[string]*session),
		ledger:    l,
		messenger: m,
		logger:    logger,
		now:       time.Now,
	}
}

// Start opens a review of items for operator. Items are copied.
func (s *Service) Start(ctx context.Context, operator, recipient string, items []Item) error {
	if len(items) == 0 {
		_, err := s.messenger.SendPrompt(ctx, recipient, "📌 No hay gastos fijos configurados.", nil)
		return err
	}

	sess := &session{Session: Session{
		Operator:  operator,
		Recipient: recipient,
		Queue:     append([]Item(nil), items...),
	}}
	s.mu.Lock()
	if _, ok := s.sessions[operator]; ok {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.sessions[operator] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	text, kb := renderItem(&sess.Session, "")
	ref, err := s.messenger.SendPrompt(ctx, recipient, text, kb)
	if err != nil {
		s.drop(operator)
		return fmt.Errorf("send recurring review: %w", err)
	}
	sess.Message = ref
	s.logger.Info("recurring review started", zap.String("operator", operator), zap.Int("items", len(items)))
	return nil
}

// Handle applies a button action to the operator's session.
func (s *Service) Handle(ctx context.Context, operator string, action Action) (Progress, error) {
	sess, err := s.session(operator)
	if err != nil {
		return Progress{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.done {
		return Progress{}, ErrNoSession
	}
	metrics.RecurringActions.WithLabelValues(strings.ToLower(string(action))).Inc()

	sess.Status = StatusReview
	switch action {
	case ActionAccept:
		return s.accept(ctx, sess)
	case ActionEdit:
		sess.Status = StatusWaitingEditAmount
		text, kb := renderEdit(&sess.Session, "")
		return sess.progress(), s.messenger.EditMessage(ctx, sess.Message, text, kb)
	case ActionSkip:
		sess.Index++
		return s.advance(ctx, sess)
	case ActionCancel:
		return s.finish(ctx, sess, true)
	}
	return sess.progress(), fmt.Errorf("unknown recurring action %q", action)
}

// HandleAmount consumes a free-text amount while the operator is editing an item.
// It reports false when no session waits for an amount.
func (s *Service) HandleAmount(ctx context.Context, operator, raw string) (bool, Progress, error) {
	sess, err := s.session(operator)
	if err != nil {
		return false, Progress{}, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.done || sess.Status != StatusWaitingEditAmount {
		return false, Progress{}, nil
	}

	amount, err := money.ParseAmount(raw)
	if err != nil {
		text, kb := renderEdit(&sess.Session, fmt.Sprintf("⚠️ \"%s\" no es un monto válido.", raw))
		return true, sess.progress(), s.messenger.EditMessage(ctx, sess.Message, text, kb)
	}
	sess.Queue[sess.Index].Amount = amount
	sess.Status = StatusReview
	p, err := s.accept(ctx, sess)
	return true, p, err
}

// Waiting reports whether operator is editing an amount.
func (s *Service) Waiting(operator string) bool {
	sess, err := s.session(operator)
	if err != nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return !sess.done && sess.Status == StatusWaitingEditAmount
}

// Snapshot returns a copy of the operator's session.
func (s *Service) Snapshot(operator string) (Session, bool) {
	sess, err := s.session(operator)
	if err != nil {
		return Session{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := sess.Session
	out.Queue = append([]Item(nil), sess.Queue...)
	return out, true
}

func (s *Service) accept(ctx context.Context, sess *session) (Progress, error) {
	item := sess.Queue[sess.Index]
	category, subcategory := ledger.SplitLabel(item.Category)
	payer := item.Owner
	if payer == "" {
		payer = sess.Operator
	}
	tx := ledger.Transaction{
		Amount:      item.Amount,
		Description: item.Name,
		Timestamp:   s.now().Format("02/01/2006 15:04"),
	}
	split := ledger.Split{
		Category:    category,
		Subcategory: subcategory,
		Scope:       item.Scope,
		Amount:      item.Amount,
		Payer:       payer,
		Kind:        ledger.KindExpense,
	}
	if err := s.ledger.AppendEntry(ctx, tx, split); err != nil {
		metrics.LedgerWrites.WithLabelValues("error").Inc()
		s.logger.Error("recurring item not saved", zap.String("operator", sess.Operator), zap.String("item", item.Name), zap.Error(err))
		text, kb := renderItem(&sess.Session, "⚠️ No se pudo guardar. Intenta de nuevo.")
		if editErr := s.messenger.EditMessage(ctx, sess.Message, text, kb); editErr != nil {
			s.logger.Error("failed to update recurring prompt", zap.Error(editErr))
		}
		return sess.progress(), fmt.Errorf("save recurring item %q: %w", item.Name, err)
	}
	metrics.LedgerWrites.WithLabelValues("ok").Inc()
	sess.Saved++
	sess.Index++
	return s.advance(ctx, sess)
}

func (s *Service) advance(ctx context.Context, sess *session) (Progress, error) {
	if sess.Index >= len(sess.Queue) {
		return s.finish(ctx, sess, false)
	}
	text, kb := renderItem(&sess.Session, "")
	return sess.progress(), s.messenger.EditMessage(ctx, sess.Message, text, kb)
}

func (s *Service) finish(ctx context.Context, sess *session, cancelled bool) (Progress, error) {
	sess.done = true
	s.drop(sess.Operator)
	p := sess.progress()
	p.Cancelled = cancelled
	s.logger.Info("recurring review finished",
		zap.String("operator", sess.Operator), zap.Int("saved", sess.Saved), zap.Bool("cancelled", cancelled))
	return p, s.messenger.EditMessage(ctx, sess.Message, renderSummary(&sess.Session, cancelled), nil)
}

func (s *Service) session(operator string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[operator]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (s *Service) drop(operator string) {
	s.mu.Lock()
	delete(s.sessions, operator)
	s.mu.Unlock()
}

func renderItem(sess *Session, notice string) (string, chat.Keyboard) {
	item := sess.Queue[sess.Index]
	text := fmt.Sprintf("📌 Gasto fijo %d/%d\n🧾 %s\n💵 %s\n📂 %s\n🏷️ %s · %s",
		sess.Index+1, len(sess.Queue), item.Name, money.Format(item.Amount), item.Category, item.Scope, ownerOf(item, sess.Operator))
	if notice != "" {
		text = notice + "\n\n" + text
	}
	kb := chat.Keyboard{
		{
			{Label: "✅ Aceptar", Token: Token(ActionAccept)},
			{Label: "✏️ Editar", Token: Token(ActionEdit)},
			{Label: "⏭️ Saltar", Token: Token(ActionSkip)},
		},
		{{Label: "🛑 Cancelar todo", Token: Token(ActionCancel)}},
	}
	return text, kb
}

func renderEdit(sess *Session, notice string) (string, chat.Keyboard) {
	item := sess.Queue[sess.Index]
	text := fmt.Sprintf("✏️ Escribe el nuevo monto para %s (actual %s).", item.Name, money.Format(item.Amount))
	if notice != "" {
		text = notice + "\n\n" + text
	}
	kb := chat.Keyboard{{
		{Label: "⏭️ Saltar", Token: Token(ActionSkip)},
		{Label: "🛑 Cancelar todo", Token: Token(ActionCancel)},
	}}
	return text, kb
}

func renderSummary(sess *Session, cancelled bool) string {
	if cancelled {
		return fmt.Sprintf("🛑 Revisión de fijos cancelada. Guardados: %d de %d.", sess.Saved, len(sess.Queue))
	}
	return fmt.Sprintf("✅ Revisión de fijos terminada. Guardados: %d de %d.", sess.Saved, len(sess.Queue))
}

func ownerOf(item Item, operator string) string {
	if item.Owner != "" {
		return item.Owner
	}
	return operator
}
