package handlers

import (
	"net/http"
	"strings"

	"marketplace/internal/middleware"
	"marketplace/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID(h.logg))
	router.Use(middleware.RequestLogger(h.logg))
	router.Use(middleware.Recoverer(h.logg))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.App.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authn := middleware.Auth(h.cfg.Auth.JWTSecret)

	router.Group(func(r chi.Router) {
		r.Use(authn)
		r.Use(middleware.RequireShop(h.owners, h.logg))
		r.Get("/payouts", h.VendorPayouts)
		r.Post("/payouts", h.CreatePayout)
		r.Post("/vendor/exit", h.VendorExit)
		r.Put("/vendor/bank-details", h.UpdateBankDetails)
	})
	router.Get("/ws/wallet", h.WalletSocket)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authn)
		r.With(middleware.RequireAdmin(h.adminDB, store.RolePayouts)).Get("/payouts", h.AdminListPayouts)
		r.With(middleware.RequireAdmin(h.adminDB, store.RolePayouts)).Put("/payouts", h.AdminUpdatePayout)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Get("/wallet-overview", h.WalletOverview)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Post("/wallets/{shopId}/freeze", h.FreezeWallet)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Post("/wallets/{shopId}/unfreeze", h.UnfreezeWallet)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Post("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Get("/ledger/verify", h.VerifyLedger)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleWallets)).Get("/ledger/verify/{walletId}", h.VerifyWallet)
		r.With(middleware.RequireAdmin(h.adminDB, store.RoleAudit)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.adminDB, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.adminDB, "")).Post("/roles/grant", h.GrantRole)
	})

	router.Route("/internal", func(r chi.Router) {
		r.Use(middleware.RequireInternalToken(h.cfg.Auth.InternalToken))
		r.Post("/sales", h.RecordSale)
		r.Post("/sales/reverse", h.ReverseSale)
		r.Post("/shops", h.RegisterShop)
	})

	router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
