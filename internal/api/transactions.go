package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/intake"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
)

// rawAmount accepts a JSON number, taken at its numeric value, or an operator-typed
// string such as "85.000" or "85k".
type rawAmount struct {
	number bool
	value  decimal.Decimal
	text   string
}

func (a *rawAmount) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		return nil
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &a.text)
	}
	a.number = true
	return a.value.UnmarshalJSON(b)
}

func (a rawAmount) Decimal() (decimal.Decimal, error) {
	if !a.number {
		return money.ParseAmount(a.text)
	}
	if !a.value.IsPositive() {
		return decimal.Zero, money.ErrInvalidAmount
	}
	return a.value, nil
}

type submitRequest struct {
	Operator    string    `json:"operator"`
	SourceID    string    `json:"source_id"`
	Amount      rawAmount `json:"amount"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
}

func (a *API) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Operator == "" {
		if claims, ok := claimsFrom(r.Context()); ok {
			req.Operator = claims.Operator
		}
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	item, err := a.intake.Submit(r.Context(), req.Operator, ledger.Transaction{
		SourceID:    strings.TrimSpace(req.SourceID),
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
		Timestamp:   req.Timestamp,
	})
	if errors.Is(err, intake.ErrUnknownOperator) {
		http.Error(w, "unknown operator", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.logger.Error("submit transaction", zap.String("operator", req.Operator), zap.Error(err))
		http.Error(w, "failed to store transaction", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", db.IntakePending, db.IntakeConsumed:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	items, err := a.store.ListIntakeItems(r.Context(), status, queryLimit(r, 100, 500))
	if err != nil {
		a.logger.Error("list transactions", zap.Error(err))
		http.Error(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []db.IntakeItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleRetryTransaction(w http.ResponseWriter, r *http.Request) {
	item, err := a.intake.Retry(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, intake.ErrAlreadyConsumed):
		http.Error(w, "transaction already recorded", http.StatusConflict)
	case err != nil:
		a.logger.Error("retry transaction", zap.Error(err))
		http.Error(w, "failed to retry transaction", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, item)
	}
}

func (a *API) handleIntakeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"halted": a.intake.Halted()})
}

// handleIntakeResume clears a halt and prompts every pending transaction again.
func (a *API) handleIntakeResume(w http.ResponseWriter, r *http.Request) {
	a.intake.Resume()
	n, err := a.intake.ResumePending(r.Context())
	if err != nil {
		a.logger.Error("resume pending", zap.Error(err))
		http.Error(w, "failed to resume pending transactions", http.StatusInternalServerError)
		return
	}
	a.logger.Info("intake resumed", zap.Int("pending", n))
	writeJSON(w, http.StatusOK, map[string]interface{}{"halted": a.intake.Halted(), "resumed": n})
}
