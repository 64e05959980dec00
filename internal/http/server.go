package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth/wallet", func(r chi.Router) {
		r.Post("/nonce", handler.IssueNonce)
		r.Post("/verify", handler.VerifyWallet)
	})

	r.Route("/donations", func(r chi.Router) {
		r.Post("/verify", handler.VerifyDonation)
		r.Get("/campaign/{campaignID}", handler.ListCampaignDonations)
		r.Get("/stats", handler.DonationStats)
	})

	r.Route("/payouts", func(r chi.Router) {
		r.Post("/run", handler.RunPayouts)
		r.Post("/{campaignID}/retry", handler.RetryPayout)
		r.Get("/summary", handler.PayoutSummary)
	})

	return &Server{Router: r}
}
