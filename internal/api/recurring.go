package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

// operatorFor resolves the {operator} path variable. Operators may only manage their own templates.
func (a *API) operatorFor(w http.ResponseWriter, r *http.Request) (config.Operator, bool) {
	op, ok := a.config.OperatorByName(mux.Vars(r)["operator"])
	if !ok {
		http.Error(w, "unknown operator", http.StatusNotFound)
		return config.Operator{}, false
	}
	if claims, ok := claimsFrom(r.Context()); !ok || !strings.EqualFold(claims.Operator, op.Name) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return config.Operator{}, false
	}
	return op, true
}

func (a *API) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	op, ok := a.operatorFor(w, r)
	if !ok {
		return
	}
	items, err := a.store.RecurringItems(r.Context(), op.Name)
	if err != nil {
		a.logger.Error("list recurring", zap.String("operator", op.Name), zap.Error(err))
		http.Error(w, "failed to list recurring items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []recurring.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleAddRecurring(w http.ResponseWriter, r *http.Request) {
	op, ok := a.operatorFor(w, r)
	if !ok {
		return
	}
	item, ok := a.decodeItem(w, r)
	if !ok {
		return
	}
	err := a.store.AddRecurringItem(r.Context(), op.Name, item)
	if errors.Is(err, db.ErrTemplateExists) {
		http.Error(w, "recurring item already exists", http.StatusConflict)
		return
	}
	if err != nil {
		a.logger.Error("add recurring", zap.String("operator", op.Name), zap.Error(err))
		http.Error(w, "failed to add recurring item", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	op, ok := a.operatorFor(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["name"]
	item, ok := a.decodeItem(w, r)
	if !ok {
		return
	}
	item.Name = name
	err := a.store.UpdateRecurringItem(r.Context(), op.Name, name, item)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "recurring item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("update recurring", zap.String("operator", op.Name), zap.Error(err))
		http.Error(w, "failed to update recurring item", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	op, ok := a.operatorFor(w, r)
	if !ok {
		return
	}
	err := a.store.RemoveRecurringItem(r.Context(), op.Name, mux.Vars(r)["name"])
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "recurring item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("delete recurring", zap.String("operator", op.Name), zap.Error(err))
		http.Error(w, "failed to delete recurring item", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "recurring item deleted"})
}

// handleStartReview opens the recurring review in the operator's channel now.
func (a *API) handleStartReview(w http.ResponseWriter, r *http.Request) {
	op, ok := a.operatorFor(w, r)
	if !ok {
		return
	}
	items, err := a.store.RecurringItems(r.Context(), op.Name)
	if err != nil {
		http.Error(w, "failed to list recurring items", http.StatusInternalServerError)
		return
	}
	err = a.reviews.Start(r.Context(), op.Name, op.ChannelID, items)
	if errors.Is(err, recurring.ErrSessionActive) {
		http.Error(w, "review already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		a.logger.Error("start review", zap.String("operator", op.Name), zap.Error(err))
		http.Error(w, "failed to start review", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"items": len(items)})
}

func (a *API) decodeItem(w http.ResponseWriter, r *http.Request) (recurring.Item, bool) {
	var item recurring.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return item, false
	}
	if err := validateItem(a.taxonomy, &item, mux.Vars(r)["name"] == ""); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return item, false
	}
	return item, true
}

func validateItem(t *taxonomy.Taxonomy, item *recurring.Item, needName bool) error {
	item.Name = strings.TrimSpace(item.Name)
	if needName && item.Name == "" {
		return errors.New("name is required")
	}
	if !item.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	scope, ok := ledger.ParseScope(string(item.Scope))
	if !ok {
		return errors.New("invalid scope")
	}
	item.Scope = scope
	category, sub := ledger.SplitLabel(item.Category)
	if _, ok := t.Category(scope, category); !ok {
		return errors.New("unknown category")
	}
	if sub != "" && !t.HasSubcategory(scope, category, sub) {
		return errors.New("unknown subcategory")
	}
	return nil
}
