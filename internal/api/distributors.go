package api

import (
	"encoding/json"
	"net/http"

	"github.com/bher20/kwhmedio/internal/rates"
)

func handleDistributors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := struct {
		Distributors []rates.DistributorDescriptor `json:"distributors"`
	}{
		Distributors: rates.Distributors(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
