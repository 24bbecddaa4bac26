package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
)

type categoryView struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

type scopeView struct {
	Scope      ledger.Scope   `json:"scope"`
	Categories []categoryView `json:"categories"`
}

func (a *API) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	var out []scopeView
	for _, s := range a.taxonomy.Scopes() {
		v := scopeView{Scope: s}
		for _, c := range a.taxonomy.Categories(s) {
			v.Categories = append(v.Categories, categoryView{Name: c.Name, Subcategories: c.Subcategories})
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type splitView struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory,omitempty"`
	Scope       ledger.Scope    `json:"scope"`
	Kind        ledger.Kind     `json:"kind"`
	Payer       string          `json:"payer"`
	Amount      decimal.Decimal `json:"amount"`
}

type dialogView struct {
	Handle      string          `json:"handle"`
	Recipient   string          `json:"recipient"`
	Payer       string          `json:"payer"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	SourceID    string          `json:"source_id"`
	Total       decimal.Decimal `json:"total"`
	Remaining   decimal.Decimal `json:"remaining"`
	Splits      []splitView     `json:"splits"`
	MessageID   string          `json:"message_id,omitempty"`
	OpenedAt    time.Time       `json:"opened_at"`
}

func (a *API) handleListDialogs(w http.ResponseWriter, r *http.Request) {
	out := []dialogView{}
	for _, d := range a.dialogs.Pending() {
		v := dialogView{
			Handle:      string(d.Handle),
			Recipient:   d.Recipient,
			Payer:       d.Payer,
			Status:      d.Status.String(),
			Description: d.Tx.Description,
			SourceID:    d.Tx.SourceID,
			Total:       d.Total,
			Remaining:   d.Remaining,
			Splits:      []splitView{},
			MessageID:   d.Message.MessageID,
			OpenedAt:    d.OpenedAt,
		}
		for _, s := range d.Splits {
			v.Splits = append(v.Splits, splitView{
				Category: s.Category, Subcategory: s.Subcategory, Scope: s.Scope, Kind: s.Kind, Payer: s.Payer, Amount: s.Amount,
			})
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleTotal(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	q := r.URL.Query()

	scope, ok := ledger.ParseScope(q.Get("scope"))
	if !ok {
		http.Error(w, "invalid scope", http.StatusBadRequest)
		return
	}
	category := strings.TrimSpace(q.Get("category"))
	if _, ok := a.taxonomy.Category(scope, category); !ok {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	kind := ledger.KindExpense
	if raw := q.Get("kind"); raw != "" {
		if kind, ok = ledger.ParseKind(raw); !ok {
			http.Error(w, "invalid kind", http.StatusBadRequest)
			return
		}
	}
	payer := q.Get("payer")
	if payer == "" && claims != nil {
		payer = claims.Operator
	}

	split := ledger.Split{Category: category, Subcategory: strings.TrimSpace(q.Get("subcategory")), Scope: scope, Kind: kind, Payer: payer}
	query := ledger.ForSplit(split)
	total, err := a.store.AccumulatedTotal(r.Context(), query)
	if err != nil {
		a.logger.Error("accumulated total", zap.String("category", split.Label()), zap.Error(err))
		http.Error(w, "failed to compute total", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":    query.Category,
		"subcategory": query.Subcategory,
		"scope":       query.Scope,
		"kind":        query.Kind,
		"payer":       query.Payer,
		"since":       ledger.CycleStart(a.now().In(a.config.Location())).Format("2006-01-02"),
		"amount":      total,
		"formatted":   money.Format(total),
	})
}

func (a *API) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	entries, err := a.store.RecentEntries(r.Context(), limit)
	if err != nil {
		a.logger.Error("list entries", zap.Error(err))
		http.Error(w, "failed to list entries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
