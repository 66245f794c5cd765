// Package marketplace expõe rotas fictícias da API de vagas para caminhões,
// usadas pelo servidor de exemplo e pelo upstream de validação do gateway.
package marketplace

import (
	"encoding/json"
	"net/http"

	"parking-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
)

type Listing struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	City     string `json:"city"`
	Spots    int    `json:"spots"`
	PriceBRL int64  `json:"price_brl_cents"`
}

var listings = []Listing{
	{ID: "lst-1", Title: "Pátio Rodovia BR-116 km 210", City: "Registro", Spots: 40, PriceBRL: 4500},
	{ID: "lst-2", Title: "Posto Km 98 Anhanguera", City: "Campinas", Spots: 25, PriceBRL: 5200},
}

// Routes registra /api/listings, /api/bookings e /api/messages em r.
func Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", listListings)
		r.Get("/listings/{id}", getListing)
		r.Post("/bookings", echo("booking received"))
		r.Get("/bookings", echo("no bookings"))
		r.Get("/messages", echo("no messages"))
		r.Post("/messages", echo("message queued"))
	})
}

func listListings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listings)
}

func getListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, l := range listings {
		if l.ID == id {
			writeJSON(w, http.StatusOK, l)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "listing not found"})
}

func echo(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     status,
			"request_id": requestid.FromContext(r.Context()),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
