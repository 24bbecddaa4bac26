package commands

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

func (h *Handler) handleTotal(s Responder, i *discordgo.InteractionCreate, op config.Operator, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	scope, ok := ledger.ParseScope(stringOption(opts, "ambito"))
	if !ok {
		h.respondText(s, i, "❌ Ámbito inválido.")
		return
	}
	cat, ok := findCategory(h.Taxonomy, scope, stringOption(opts, "categoria"))
	if !ok {
		h.respondText(s, i, fmt.Sprintf("❌ Categoría no encontrada en %s.", scope))
		return
	}
	sub := strings.TrimSpace(stringOption(opts, "subcategoria"))
	if sub != "" {
		found := false
		for _, candidate := range cat.Subcategories {
			if strings.EqualFold(taxonomy.DisplayName(candidate), sub) {
				sub, found = taxonomy.DisplayName(candidate), true
				break
			}
		}
		if !found {
			h.respondText(s, i, fmt.Sprintf("❌ %s no tiene la subcategoría %q.", cat.Name, sub))
			return
		}
	}
	kind := ledger.KindExpense
	if raw := stringOption(opts, "tipo"); raw != "" {
		if k, ok := ledger.ParseKind(raw); ok {
			kind = k
		}
	}

	split := ledger.Split{Category: cat.Name, Subcategory: sub, Scope: scope, Kind: kind, Payer: op.Name}
	total, err := h.Ledger.AccumulatedTotal(context.Background(), ledger.ForSplit(split))
	if err != nil {
		h.Logger.Error("accumulated total", zap.String("category", split.Label()), zap.Error(err))
		h.respondText(s, i, "❌ No se pudo consultar el acumulado.")
		return
	}
	since := ledger.CycleStart(h.now().In(h.Location))
	h.respondText(s, i, fmt.Sprintf("📊 %s (%s, %s)\nAcumulado desde %s: %s",
		split.Label(), scope, kind, since.Format("02/01/2006"), money.Format(total)))
}

// findCategory matches a category by name, ignoring case and leading emoji.
func findCategory(t *taxonomy.Taxonomy, scope ledger.Scope, query string) (taxonomy.Category, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return taxonomy.Category{}, false
	}
	for _, c := range t.Categories(scope) {
		if strings.EqualFold(c.Name, q) || strings.EqualFold(bareName(c.Name), bareName(q)) {
			return c, true
		}
	}
	return taxonomy.Category{}, false
}

func bareName(s string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}
