// Package commands implements the bot's slash commands.
package commands

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

type Operators interface {
	OperatorByUser(userID string) (config.Operator, bool)
	OperatorByChannel(channelID string) (config.Operator, bool)
}

type Dialogs interface {
	Pending() []dialog.Summary
}

type Reviews interface {
	Start(ctx context.Context, operator, recipient string, items []recurring.Item) error
	Snapshot(operator string) (recurring.Session, bool)
}

type Templates interface {
	RecurringItems(ctx context.Context, operator string) ([]recurring.Item, error)
}

type Intake interface {
	Submit(ctx context.Context, operator string, tx ledger.Transaction) (db.IntakeItem, error)
}

type Deps struct {
	Taxonomy  *taxonomy.Taxonomy
	Operators Operators
	Ledger    ledger.Ledger
	Dialogs   Dialogs
	Reviews   Reviews
	Templates Templates
	Intake    Intake
	Location  *time.Location
	Logger    *zap.Logger
}

// Handler dispatches application commands.
type Handler struct {
	Deps
	now func() time.Time
	wg  sync.WaitGroup
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Taxonomy == nil {
		d.Taxonomy = taxonomy.Default()
	}
	return &Handler{Deps: d, now: time.Now}
}

// Handle answers one application command interaction.
func (h *Handler) Handle(s Responder, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	op, ok := h.operator(i)
	if !ok {
		h.respondText(s, i, "🚫 Este canal no está asociado a ningún operador.")
		return
	}
	h.Logger.Info("command", zap.String("name", data.Name), zap.String("operator", op.Name))

	switch data.Name {
	case "fijos":
		h.handleRecurring(s, i, op)
	case "total":
		h.handleTotal(s, i, op, data.Options)
	case "pendientes":
		h.handlePending(s, i, op)
	case "registrar":
		h.handleRegister(s, i, op, data.Options)
	default:
		h.respondText(s, i, "Comando desconocido.")
	}
}

// Wait blocks until background work started by commands has finished.
func (h *Handler) Wait() { h.wg.Wait() }

func (h *Handler) operator(i *discordgo.InteractionCreate) (config.Operator, bool) {
	if id := userID(i); id != "" {
		if op, ok := h.Operators.OperatorByUser(id); ok {
			return op, true
		}
	}
	return h.Operators.OperatorByChannel(i.ChannelID)
}

func (h *Handler) background(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(context.Background())
	}()
}
