package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/intake"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/metrics"
	"github.com/susu3304/gastobot/internal/recurring"
)

type fakeStore struct {
	mu    sync.Mutex
	query ledger.TotalQuery
	items map[string][]recurring.Item
}

func (f *fakeStore) AccumulatedTotal(_ context.Context, q ledger.TotalQuery) (decimal.Decimal, error) {
	f.query = q
	return decimal.NewFromInt(250000), nil
}

func (f *fakeStore) RecentEntries(context.Context, int) ([]db.LedgerEntry, error) {
	return []db.LedgerEntry{{ID: 1, Category: "💸 Deudas", Amount: decimal.NewFromInt(40000)}}, nil
}

func (f *fakeStore) RecurringItems(_ context.Context, operator string) ([]recurring.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[operator], nil
}

func (f *fakeStore) AddRecurringItem(_ context.Context, operator string, it recurring.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items[operator] {
		if existing.Name == it.Name {
			return db.ErrTemplateExists
		}
	}
	f.items[operator] = append(f.items[operator], it)
	return nil
}

func (f *fakeStore) UpdateRecurringItem(context.Context, string, string, recurring.Item) error {
	return db.ErrNotFound
}

func (f *fakeStore) RemoveRecurringItem(context.Context, string, string) error {
	return db.ErrNotFound
}

func (f *fakeStore) ListIntakeItems(_ context.Context, status string, _ int) ([]db.IntakeItem, error) {
	return []db.IntakeItem{{SourceID: "mail-1", Status: status}}, nil
}

type fakeDialogs []dialog.Summary

func (f fakeDialogs) Pending() []dialog.Summary { return f }

type fakeReviews struct {
	started []string
	err     error
}

func (f *fakeReviews) Start(_ context.Context, operator, recipient string, _ []recurring.Item) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, operator+"@"+recipient)
	return nil
}

type fakeIntake struct {
	submitted []ledger.Transaction
	operator  string
	halted    bool
	resumed   bool
}

func (f *fakeIntake) Submit(_ context.Context, operator string, tx ledger.Transaction) (db.IntakeItem, error) {
	if !strings.EqualFold(operator, "Juanma") {
		return db.IntakeItem{}, intake.ErrUnknownOperator
	}
	f.operator = operator
	f.submitted = append(f.submitted, tx)
	return db.IntakeItem{SourceID: tx.SourceID, Operator: operator, Amount: tx.Amount, Status: db.IntakePending}, nil
}

func (f *fakeIntake) Retry(_ context.Context, id string) (db.IntakeItem, error) {
	switch id {
	case "done":
		return db.IntakeItem{}, intake.ErrAlreadyConsumed
	case "missing":
		return db.IntakeItem{}, db.ErrNotFound
	}
	return db.IntakeItem{SourceID: id}, nil
}

func (f *fakeIntake) Halted() bool { return f.halted }
func (f *fakeIntake) Resume()      { f.halted, f.resumed = false, true }
func (f *fakeIntake) ResumePending(context.Context) (int, error) {
	return 2, nil
}

type fixture struct {
	api     *API
	handler http.Handler
	store   *fakeStore
	reviews *fakeReviews
	intake  *fakeIntake
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:   "test-secret",
		IngestToken: "ingest-token",
		Timezone:    "UTC",
		Operators: []config.Operator{
			{Name: "Juanma", ChannelID: "111", UserID: "900"},
			{Name: "Sara", ChannelID: "222", UserID: "901"},
		},
	}
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	f := &fixture{
		store:   &fakeStore{items: map[string][]recurring.Item{}},
		reviews: &fakeReviews{},
		intake:  &fakeIntake{},
	}
	dialogs := fakeDialogs{{State: dialog.State{Handle: "h1", Recipient: "111", Total: decimal.NewFromInt(85000), Status: dialog.StatusWaitingScope}}}
	f.api = New(Deps{Config: cfg, Store: f.store, Dialogs: dialogs, Reviews: f.reviews, Intake: f.intake, Gatherer: reg})
	f.handler = f.api.Handler()

	token, _, err := f.api.issueToken("900", "juanma", "Juanma")
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *fixture) do(method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do("GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	w = f.do("GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gastobot_dialogs_open")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/dialogs", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/dialogs", "", "forged").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/dialogs", "", "ingest-token").Code, "ingest token only submits")
}

func TestListDialogs(t *testing.T) {
	f := newFixture(t)
	w := f.do("GET", "/api/dialogs", "", f.token)
	require.Equal(t, http.StatusOK, w.Code)

	var out []dialogView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "h1", out[0].Handle)
	assert.Equal(t, "waiting_scope", out[0].Status)
	assert.True(t, out[0].Total.Equal(decimal.NewFromInt(85000)))
}

func TestTotalDefaultsPayerToOperator(t *testing.T) {
	f := newFixture(t)
	target := "/api/totals?scope=Personal&category=" + url.QueryEscape("💸 Deudas")
	w := f.do("GET", target, "", f.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "Juanma", f.store.query.Payer)
	assert.Equal(t, ledger.KindExpense, f.store.query.Kind)
	assert.Contains(t, w.Body.String(), "$250,000")

	w = f.do("GET", "/api/totals?scope=Personal&category=Nada", "", f.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecurringCRUD(t *testing.T) {
	f := newFixture(t)
	body := `{"name":"Arriendo","amount":"1500000","category":"🏠 Casa - Arriendo","scope":"familiar"}`

	w := f.do("POST", "/api/recurring/Juanma", body, f.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, f.store.items["Juanma"], 1)
	assert.Equal(t, ledger.ScopeFamiliar, f.store.items["Juanma"][0].Scope)

	assert.Equal(t, http.StatusConflict, f.do("POST", "/api/recurring/Juanma", body, f.token).Code)
	assert.Equal(t, http.StatusForbidden, f.do("POST", "/api/recurring/Sara", body, f.token).Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/recurring/Nadie", "", f.token).Code)

	bad := `{"name":"X","amount":"10","category":"🏠 Casa - Viajes","scope":"Familiar"}`
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/recurring/Juanma", bad, f.token).Code)

	assert.Equal(t, http.StatusNotFound, f.do("DELETE", "/api/recurring/Juanma/Luz", "", f.token).Code)
	assert.Equal(t, http.StatusNotFound, f.do("PUT", "/api/recurring/Juanma/Luz", body, f.token).Code)

	w = f.do("GET", "/api/recurring/juanma", "", f.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Arriendo")
}

func TestStartReview(t *testing.T) {
	f := newFixture(t)
	w := f.do("POST", "/api/recurring/Juanma/review", "", f.token)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"Juanma@111"}, f.reviews.started)

	f.reviews.err = recurring.ErrSessionActive
	assert.Equal(t, http.StatusConflict, f.do("POST", "/api/recurring/Juanma/review", "", f.token).Code)
}

func TestSubmitTransactionWithIngestToken(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/api/transactions", `{"operator":"Juanma","source_id":"mail-7","amount":"85.000","description":"Exito"}`, "ingest-token")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, f.intake.submitted, 1)
	assert.True(t, f.intake.submitted[0].Amount.Equal(decimal.NewFromInt(85000)))
	assert.Equal(t, "mail-7", f.intake.submitted[0].SourceID)

	w = f.do("POST", "/api/transactions", `{"amount":12000}`, f.token)
	require.Equal(t, http.StatusAccepted, w.Code, "session operator is used when none is given")
	assert.True(t, f.intake.submitted[1].Amount.Equal(decimal.NewFromInt(12000)))

	w = f.do("POST", "/api/transactions", `{"operator":"Juanma","amount":12.500}`, "ingest-token")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, f.intake.submitted[2].Amount.Equal(decimal.RequireFromString("12.5")), "a JSON number keeps its numeric value")

	w = f.do("POST", "/api/transactions", `{"operator":"Juanma","amount":"12.500"}`, "ingest-token")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, f.intake.submitted[3].Amount.Equal(decimal.NewFromInt(12500)), "typed text uses the thousands separator")

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/transactions", `{"operator":"Juanma","amount":0}`, "ingest-token").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/transactions", `{"operator":"Nadie","amount":"1"}`, "ingest-token").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/transactions", `{"operator":"Juanma","amount":"-5"}`, "ingest-token").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("POST", "/api/transactions", `{"amount":"1"}`, "wrong").Code)
}

func TestTransactionsListAndRetry(t *testing.T) {
	f := newFixture(t)

	w := f.do("GET", "/api/transactions?status=pending", "", f.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mail-1")
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/transactions?status=weird", "", f.token).Code)

	assert.Equal(t, http.StatusAccepted, f.do("POST", "/api/transactions/mail-1/retry", "", f.token).Code)
	assert.Equal(t, http.StatusConflict, f.do("POST", "/api/transactions/done/retry", "", f.token).Code)
	assert.Equal(t, http.StatusNotFound, f.do("POST", "/api/transactions/missing/retry", "", f.token).Code)
}

func TestIntakeResume(t *testing.T) {
	f := newFixture(t)
	f.intake.halted = true

	w := f.do("GET", "/healthz", "", "")
	assert.Contains(t, w.Body.String(), "halted")

	w = f.do("POST", "/api/intake/resume", "", f.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.intake.resumed)
	assert.JSONEq(t, `{"halted":false,"resumed":2}`, w.Body.String())
}
