package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
)

func (h *Handler) handleRegister(s Responder, i *discordgo.InteractionCreate, op config.Operator, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	amount, err := money.ParseAmount(stringOption(opts, "monto"))
	if err != nil {
		h.respondText(s, i, "❌ Monto inválido. Ejemplos: 85000, 85.000, 85k")
		return
	}
	desc := strings.TrimSpace(stringOption(opts, "descripcion"))
	if desc == "" {
		desc = "Registro manual"
	}
	tx := ledger.Transaction{
		SourceID:    "discord-" + i.ID,
		Amount:      amount,
		Description: desc,
		Timestamp:   h.now().In(h.Location).Format(time.RFC3339),
	}
	if _, err := h.Intake.Submit(context.Background(), op.Name, tx); err != nil {
		h.Logger.Error("manual entry", zap.String("operator", op.Name), zap.Error(err))
		h.respondText(s, i, "❌ No se pudo registrar la transacción.")
		return
	}
	h.respondText(s, i, fmt.Sprintf("📝 Registrada: %s %s", money.Format(amount), desc))
}
