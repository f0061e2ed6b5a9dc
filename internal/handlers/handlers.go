package handlers

import (
	"encoding/json"
	"net/http"

	"marketplace/internal/apperrors"
	"marketplace/internal/config"
	"marketplace/internal/logger"
	"marketplace/internal/middleware"
	"marketplace/internal/services"
	"marketplace/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

// Params collects the handler dependencies.
type Params struct {
	Config   config.Config
	Logger   *logger.Logger
	Ledger   LedgerService
	Payouts  PayoutWorkflow
	Exit     ExitWorkflow
	Bank     BankDetailsService
	Shops    ShopService
	Reports  ReportService
	Admins   AdminService
	Audit    AuditReader
	AdminDB  AdminStore
	Owners   ShopResolver
	Hub      *websocket.Hub
	Gatherer prometheus.Gatherer
}

type Handler struct {
	cfg      config.Config
	logg     *logger.Logger
	ledger   LedgerService
	payouts  PayoutWorkflow
	exit     ExitWorkflow
	bank     BankDetailsService
	shops    ShopService
	reports  ReportService
	admins   AdminService
	audit    AuditReader
	adminDB  AdminStore
	owners   ShopResolver
	hub      *websocket.Hub
	gatherer prometheus.Gatherer
}

func New(p Params) *Handler {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	hub := p.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		cfg:      p.Config,
		logg:     logg,
		ledger:   p.Ledger,
		payouts:  p.Payouts,
		exit:     p.Exit,
		bank:     p.Bank,
		shops:    p.Shops,
		reports:  p.Reports,
		admins:   p.Admins,
		audit:    p.Audit,
		adminDB:  p.AdminDB,
		owners:   p.Owners,
		hub:      hub,
		gatherer: gatherer,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps err onto the error taxonomy. Internal failures are logged
// with the request context before the generic body is written.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := services.AppError(err)
	if appErr.Code() == apperrors.CodeInternal {
		h.logg.Error(r.Context(), "request failed", err)
	}
	middleware.WriteError(w, appErr)
}

// actor returns the authenticated user, or "" on routes without auth.
func actor(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

func vendorShop(r *http.Request) string {
	shopID, _ := middleware.ShopIDFromContext(r.Context())
	return shopID
}
