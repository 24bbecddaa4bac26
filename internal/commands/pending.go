package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/money"
)

func (h *Handler) handlePending(s Responder, i *discordgo.InteractionCreate, op config.Operator) {
	var lines []string
	for _, d := range h.Dialogs.Pending() {
		if d.Recipient != op.ChannelID {
			continue
		}
		desc := d.Tx.Description
		if desc == "" {
			desc = "(sin descripción)"
		}
		lines = append(lines, fmt.Sprintf("• %s %s: %s, hace %s",
			money.Format(d.Total), desc, d.Status, h.now().Sub(d.OpenedAt).Round(time.Minute)))
	}
	if len(lines) == 0 {
		h.respondText(s, i, "✅ No hay transacciones pendientes.")
		return
	}
	h.respondText(s, i, fmt.Sprintf("⏳ %d pendientes:\n%s", len(lines), strings.Join(lines, "\n")))
}
