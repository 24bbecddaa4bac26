package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/recurring"
)

func (h *Handler) handleRecurring(s Responder, i *discordgo.InteractionCreate, op config.Operator) {
	if _, active := h.Reviews.Snapshot(op.Name); active {
		h.respondText(s, i, "⏳ Ya hay una revisión de gastos fijos en curso.")
		return
	}
	items, err := h.Templates.RecurringItems(context.Background(), op.Name)
	if err != nil {
		h.Logger.Error("load recurring items", zap.String("operator", op.Name), zap.Error(err))
		h.respondText(s, i, "❌ No se pudieron cargar los gastos fijos.")
		return
	}
	h.respondText(s, i, fmt.Sprintf("📌 Revisando %d gastos fijos.", len(items)))

	h.background(func(ctx context.Context) {
		err := h.Reviews.Start(ctx, op.Name, op.ChannelID, items)
		switch {
		case errors.Is(err, recurring.ErrSessionActive):
			h.Logger.Info("recurring review already active", zap.String("operator", op.Name))
		case err != nil:
			h.Logger.Error("start recurring review", zap.String("operator", op.Name), zap.Error(err))
		}
	})
}
