package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/pool"
	"github.com/mythorath/m2p/internal/reward"
)

func testEngine() *reward.Engine {
	sources := []pool.Source{
		{Name: "cpu-pool", Enabled: true, Shape: pool.ShapeFlat, ConversionFactor: decimal.New(1, 0)},
		{Name: "zpool", Enabled: false, Shape: pool.ShapeBTC, ConversionFactor: decimal.New(1000000, 0)},
	}
	return reward.NewEngine(nil, nil, nil, nil, sources, reward.Config{}, slog.Default())
}

func TestStatsEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()

	Stats(testEngine())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var summary reward.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.PollsTotal != 0 || summary.CyclesRun != 0 {
		t.Errorf("fresh engine summary = %+v, want zeroes", summary)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rec := httptest.NewRecorder()

	Sources(testEngine())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Sources) != 1 || body.Sources[0] != "cpu-pool" {
		t.Errorf("sources = %v, want [cpu-pool] (disabled pools hidden)", body.Sources)
	}
}
