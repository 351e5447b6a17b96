package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mythorath/m2p/internal/store"
)

type rewardEntry struct {
	Source         string    `json:"source"`
	Delta          string    `json:"delta"`
	AP             string    `json:"ap"`
	CumulativePaid string    `json:"cumulative_paid"`
	PreviousPaid   string    `json:"previous_paid"`
	ObservedAt     time.Time `json:"observed_at"`
}

// RecentRewards serves the newest ledger rows for one wallet.
func RecentRewards(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			http.Error(w, `{"error":"wallet query parameter is required"}`, http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		entries, err := s.RecentRewards(r.Context(), wallet, limit)
		if err != nil {
			http.Error(w, `{"error":"failed to load rewards"}`, http.StatusInternalServerError)
			return
		}

		out := make([]rewardEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, rewardEntry{
				Source:         e.Source,
				Delta:          e.Delta.String(),
				AP:             e.AP.String(),
				CumulativePaid: e.CumulativePaid.String(),
				PreviousPaid:   e.PreviousPaid.String(),
				ObservedAt:     e.ObservedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"wallet": wallet, "rewards": out})
	}
}
