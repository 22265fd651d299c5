package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func setupTest(t *testing.T) {
	t.Helper()
	if logger.Log == nil {
		logger.Init("error", "")
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/quote", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "AAPL" {
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"symbol":"AAPL","price":187.25}`))
	})
	mux.HandleFunc("/v1/history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","bars":[
			{"date":"2025-03-07","open":180,"high":183,"low":179,"close":182.5,"volume":51000000},
			{"date":"2025-03-10","open":182.5,"high":188,"low":182,"close":187.25,"volume":64000000}
		]}`))
	})
	mux.HandleFunc("/v1/holders", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","holders":[
			{"name":"Vanguard Group","shares":1300000000,"value":243000000000,"change_pct":0.4,"reported_at":"2025-02-14"}
		]}`))
	})
	mux.HandleFunc("/v1/insiders", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","trades":[
			{"insider":"Jane Roe","title":"CFO","action":"SELL","shares":15000,"price":186.4,"filed_at":"2025-03-02"}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(baseURL string) *HTTPClient {
	return NewHTTPClient(&config.MarketDataConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func TestGetCurrentPrice(t *testing.T) {
	setupTest(t)
	server := newTestServer(t)
	client := newTestClient(server.URL)

	price, err := client.GetCurrentPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetCurrentPrice() error = %v", err)
	}
	if got := models.ToFloat64(price); got != 187.25 {
		t.Errorf("price = %f, want 187.25", got)
	}
}

func TestGetCurrentPriceUnknownSymbol(t *testing.T) {
	setupTest(t)
	server := newTestServer(t)
	client := newTestClient(server.URL)

	if _, err := client.GetCurrentPrice(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestGetHistory(t *testing.T) {
	setupTest(t)
	server := newTestServer(t)
	client := newTestClient(server.URL)

	bars, err := client.GetHistory(context.Background(), "AAPL", 30)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}
	if bars[0].Date.After(bars[1].Date) {
		t.Error("bars should be oldest first")
	}
	if got := models.ToFloat64(bars[1].Close); got != 187.25 {
		t.Errorf("last close = %f, want 187.25", got)
	}
}

func TestGetInstitutionalHolders(t *testing.T) {
	setupTest(t)
	server := newTestServer(t)
	client := newTestClient(server.URL)

	holders, err := client.GetInstitutionalHolders(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetInstitutionalHolders() error = %v", err)
	}
	if len(holders) != 1 || holders[0].Name != "Vanguard Group" {
		t.Errorf("holders = %+v, want Vanguard Group", holders)
	}
	if holders[0].Shares != 1300000000 {
		t.Errorf("shares = %d, want 1300000000", holders[0].Shares)
	}
}

func TestGetInsiderTrades(t *testing.T) {
	setupTest(t)
	server := newTestServer(t)
	client := newTestClient(server.URL)

	trades, err := client.GetInsiderTrades(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetInsiderTrades() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].Action != models.ActionSell {
		t.Errorf("action = %s, want SELL", trades[0].Action)
	}
}

func TestAuthorizationHeaderSent(t *testing.T) {
	setupTest(t)

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"symbol":"AAPL","price":1}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(server.URL)
	if _, err := client.GetCurrentPrice(context.Background(), "AAPL"); err != nil {
		t.Fatalf("GetCurrentPrice() error = %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
}
