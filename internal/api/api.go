// Package api serves the operator web API, the collector intake endpoint and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

// Store is the persistence the API reads and edits.
type Store interface {
	AccumulatedTotal(ctx context.Context, q ledger.TotalQuery) (decimal.Decimal, error)
	RecentEntries(ctx context.Context, limit int) ([]db.LedgerEntry, error)
	RecurringItems(ctx context.Context, operator string) ([]recurring.Item, error)
	AddRecurringItem(ctx context.Context, operator string, it recurring.Item) error
	UpdateRecurringItem(ctx context.Context, operator, name string, it recurring.Item) error
	RemoveRecurringItem(ctx context.Context, operator, name string) error
	ListIntakeItems(ctx context.Context, status string, limit int) ([]db.IntakeItem, error)
}

type Dialogs interface {
	Pending() []dialog.Summary
}

type Reviews interface {
	Start(ctx context.Context, operator, recipient string, items []recurring.Item) error
}

type Intake interface {
	Submit(ctx context.Context, operator string, tx ledger.Transaction) (db.IntakeItem, error)
	Retry(ctx context.Context, sourceID string) (db.IntakeItem, error)
	Halted() bool
	Resume()
	ResumePending(ctx context.Context) (int, error)
}

type Deps struct {
	Config   *config.Config
	Store    Store
	Dialogs  Dialogs
	Reviews  Reviews
	Intake   Intake
	Taxonomy *taxonomy.Taxonomy
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type API struct {
	router      *mux.Router
	config      *config.Config
	store       Store
	dialogs     Dialogs
	reviews     Reviews
	intake      Intake
	taxonomy    *taxonomy.Taxonomy
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	server      *http.Server
	now         func() time.Time
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Taxonomy == nil {
		d.Taxonomy = taxonomy.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	cfg := d.Config
	api := &API{
		router:    mux.NewRouter(),
		config:    cfg,
		store:     d.Store,
		dialogs:   d.Dialogs,
		reviews:   d.Reviews,
		intake:    d.Intake,
		taxonomy:  d.Taxonomy,
		gatherer:  d.Gatherer,
		logger:    d.Logger,
		jwtSecret: []byte(cfg.JWTSecret),
		now:       time.Now,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Collectors authenticate with the ingest token or an operator session.
	a.router.Handle("/api/transactions", a.ingestMiddleware(http.HandlerFunc(a.handleSubmitTransaction))).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/taxonomy", a.handleTaxonomy).Methods("GET")
	protected.HandleFunc("/dialogs", a.handleListDialogs).Methods("GET")
	protected.HandleFunc("/totals", a.handleTotal).Methods("GET")
	protected.HandleFunc("/entries", a.handleListEntries).Methods("GET")

	protected.HandleFunc("/recurring/{operator}", a.handleListRecurring).Methods("GET")
	protected.HandleFunc("/recurring/{operator}", a.handleAddRecurring).Methods("POST")
	protected.HandleFunc("/recurring/{operator}/review", a.handleStartReview).Methods("POST")
	protected.HandleFunc("/recurring/{operator}/{name}", a.handleUpdateRecurring).Methods("PUT")
	protected.HandleFunc("/recurring/{operator}/{name}", a.handleDeleteRecurring).Methods("DELETE")

	protected.HandleFunc("/transactions", a.handleListTransactions).Methods("GET")
	protected.HandleFunc("/transactions/{id}/retry", a.handleRetryTransaction).Methods("POST")
	protected.HandleFunc("/intake", a.handleIntakeStatus).Methods("GET")
	protected.HandleFunc("/intake/resume", a.handleIntakeResume).Methods("POST")
}

// Handler returns the routed handler wrapped with CORS.
func (a *API) Handler() http.Handler {
	// Note: When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until Shutdown is called.
func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.intake != nil && a.intake.Halted() {
		status = "halted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
