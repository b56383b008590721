package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"credits/internal/config"
	"credits/internal/websocket"
)

type Handler struct {
	cfg       config.Config
	log       zerolog.Logger
	service   WalletService
	accounts  AccountStore
	ledger    LedgerStore
	projector SnapshotSource
	hub       *websocket.Hub
}

func New(cfg config.Config, log zerolog.Logger, service WalletService, accounts AccountStore, ledger LedgerStore, projector SnapshotSource, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log,
		service:   service,
		accounts:  accounts,
		ledger:    ledger,
		projector: projector,
		hub:       hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/accounts", h.CreateAccount)
	router.Get("/accounts/{id}", h.GetAccount)
	router.Get("/accounts/{id}/ledger", h.ListLedger)
	router.Post("/accounts/{id}/spend", h.Spend)
	router.Post("/accounts/{id}/recharge", h.Recharge)
	router.Get("/ws/accounts", h.WSAccounts)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func (h *Handler) WSAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "owner_id is required")
		return
	}
	websocket.ServeWS(w, r, h.hub, ownerID)
}
