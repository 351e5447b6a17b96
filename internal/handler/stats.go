package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mythorath/m2p/internal/reward"
)

// Stats serves the poll-cycle summary: totals plus per-pool request counts,
// success rate and average latency.
func Stats(engine *reward.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(engine.Metrics().Summary())
	}
}

// Sources lists the enabled pool names.
func Sources(engine *reward.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"sources": engine.Sources()})
	}
}
