package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

const wireDateLayout = "2006-01-02"

// HTTPClient implements DataClient over a REST market data API
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a market data client from configuration
func NewHTTPClient(cfg *config.MarketDataConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// GetCurrentPrice returns the latest trade price for a ticker
func (c *HTTPClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var result struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}

	params := url.Values{"symbol": {ticker}}
	if err := c.get(ctx, "/v1/quote", params, &result); err != nil {
		return decimal.Zero, err
	}
	if result.Price <= 0 {
		return decimal.Zero, fmt.Errorf("no price for %s", ticker)
	}

	return models.NewDecimal(result.Price), nil
}

// GetHistory returns up to days of daily bars, oldest first
func (c *HTTPClient) GetHistory(ctx context.Context, ticker string, days int) ([]models.PriceBar, error) {
	var result struct {
		Symbol string `json:"symbol"`
		Bars   []struct {
			Date   string  `json:"date"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		} `json:"bars"`
	}

	params := url.Values{
		"symbol": {ticker},
		"days":   {strconv.Itoa(days)},
	}
	if err := c.get(ctx, "/v1/history", params, &result); err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(result.Bars))
	for _, b := range result.Bars {
		date, err := time.Parse(wireDateLayout, b.Date)
		if err != nil {
			return nil, fmt.Errorf("bad bar date %q for %s: %w", b.Date, ticker, err)
		}
		bars = append(bars, models.PriceBar{
			Date:   date,
			Open:   models.NewDecimal(b.Open),
			High:   models.NewDecimal(b.High),
			Low:    models.NewDecimal(b.Low),
			Close:  models.NewDecimal(b.Close),
			Volume: models.NewDecimal(b.Volume),
		})
	}

	return bars, nil
}

// GetInstitutionalHolders returns the latest 13F holder positions
func (c *HTTPClient) GetInstitutionalHolders(ctx context.Context, ticker string) ([]models.InstitutionalHolder, error) {
	var result struct {
		Symbol  string `json:"symbol"`
		Holders []struct {
			Name       string  `json:"name"`
			Shares     int64   `json:"shares"`
			Value      float64 `json:"value"`
			ChangePct  float64 `json:"change_pct"`
			ReportedAt string  `json:"reported_at"`
		} `json:"holders"`
	}

	params := url.Values{"symbol": {ticker}}
	if err := c.get(ctx, "/v1/holders", params, &result); err != nil {
		return nil, err
	}

	holders := make([]models.InstitutionalHolder, 0, len(result.Holders))
	for _, h := range result.Holders {
		reported, _ := time.Parse(wireDateLayout, h.ReportedAt)
		holders = append(holders, models.InstitutionalHolder{
			Name:       h.Name,
			Shares:     h.Shares,
			Value:      models.NewDecimal(h.Value),
			ChangePct:  h.ChangePct,
			ReportedAt: reported,
		})
	}

	return holders, nil
}

// GetInsiderTrades returns recent insider filings
func (c *HTTPClient) GetInsiderTrades(ctx context.Context, ticker string) ([]models.InsiderTrade, error) {
	var result struct {
		Symbol string `json:"symbol"`
		Trades []struct {
			Insider string  `json:"insider"`
			Title   string  `json:"title"`
			Action  string  `json:"action"`
			Shares  int64   `json:"shares"`
			Price   float64 `json:"price"`
			FiledAt string  `json:"filed_at"`
		} `json:"trades"`
	}

	params := url.Values{"symbol": {ticker}}
	if err := c.get(ctx, "/v1/insiders", params, &result); err != nil {
		return nil, err
	}

	trades := make([]models.InsiderTrade, 0, len(result.Trades))
	for _, t := range result.Trades {
		filed, _ := time.Parse(wireDateLayout, t.FiledAt)
		trades = append(trades, models.InsiderTrade{
			Insider: t.Insider,
			Title:   t.Title,
			Action:  models.SignalAction(t.Action),
			Shares:  t.Shares,
			Price:   models.NewDecimal(t.Price),
			FiledAt: filed,
		})
	}

	return trades, nil
}

// get performs one GET request and decodes the JSON body into out
func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
