package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient() *Client {
	return NewClient(2 * time.Second)
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "AWalletAddr" {
			t.Errorf("address = %q, want AWalletAddr", got)
		}
		_, _ = w.Write([]byte(`{"paid": 7.5, "balance": 0.1}`))
	}))
	defer srv.Close()

	src := Source{
		Name:             "cpu-pool",
		Shape:            ShapeFlat,
		EndpointTemplate: srv.URL + "/api/worker_stats?address=%s",
		ConversionFactor: decimal.New(1, 0),
	}

	stats, err := testClient().Fetch(context.Background(), src, "AWalletAddr")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !stats.CumulativePaid.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("CumulativePaid = %s, want 7.5", stats.CumulativePaid)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := Source{Name: "cpu-pool", Shape: ShapeFlat, EndpointTemplate: srv.URL + "/?address=%s"}

	_, err := testClient().Fetch(context.Background(), src, "w")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	src := Source{Name: "cpu-pool", Shape: ShapeFlat, EndpointTemplate: "http://127.0.0.1:1/?address=%s"}

	_, err := testClient().Fetch(context.Background(), src, "w")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestFetchNotFoundIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such wallet", http.StatusNotFound)
	}))
	defer srv.Close()

	src := Source{Name: "rplant", Shape: ShapeNested, EndpointTemplate: srv.URL + "/api/walletEx/advc/%s"}

	_, err := testClient().Fetch(context.Background(), src, "w")
	if !IsMalformed(err) {
		t.Fatalf("err = %v, want malformed", err)
	}
}

func TestFetchBadBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	src := Source{Name: "zpool", Shape: ShapeBTC, EndpointTemplate: srv.URL + "/api/walletEx?address=%s"}

	_, err := testClient().Fetch(context.Background(), src, "w")
	if !IsMalformed(err) {
		t.Fatalf("err = %v, want malformed", err)
	}
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	src := Source{Name: "cpu-pool", Shape: ShapeFlat, EndpointTemplate: srv.URL + "/?address=%s"}

	c := NewClient(50 * time.Millisecond)
	_, err := c.Fetch(context.Background(), src, "w")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestEndpointForAppendsWhenNoVerb(t *testing.T) {
	src := Source{EndpointTemplate: "https://pool.rplant.xyz/api/walletEx/advc/"}
	got := endpointFor(src, "wallet1")
	want := "https://pool.rplant.xyz/api/walletEx/advc/wallet1"
	if got != want {
		t.Errorf("endpointFor = %q, want %q", got, want)
	}
}
