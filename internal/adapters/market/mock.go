package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// MockClient is an in-memory DataClient for tests and dry runs
type MockClient struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	history map[string][]models.PriceBar
	holders map[string][]models.InstitutionalHolder
	trades  map[string][]models.InsiderTrade
	err     error
	calls   int
}

// NewMockClient creates an empty mock
func NewMockClient() *MockClient {
	return &MockClient{
		prices:  make(map[string]decimal.Decimal),
		history: make(map[string][]models.PriceBar),
		holders: make(map[string][]models.InstitutionalHolder),
		trades:  make(map[string][]models.InsiderTrade),
	}
}

// SetPrice fixes the spot price for a ticker
func (m *MockClient) SetPrice(ticker string, price float64) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = decimal.NewFromFloat(price)
	return m
}

// SetHistory fixes the bar history for a ticker
func (m *MockClient) SetHistory(ticker string, bars []models.PriceBar) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[ticker] = bars
	return m
}

// SetError makes every call fail with err
func (m *MockClient) SetError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns how many data reads were made
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return decimal.Zero, m.err
	}
	price, ok := m.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", ticker)
	}
	return price, nil
}

func (m *MockClient) GetHistory(ctx context.Context, ticker string, days int) ([]models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	bars := m.history[ticker]
	if len(bars) > days && days > 0 {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func (m *MockClient) GetInstitutionalHolders(ctx context.Context, ticker string) ([]models.InstitutionalHolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.holders[ticker], nil
}

func (m *MockClient) GetInsiderTrades(ctx context.Context, ticker string) ([]models.InsiderTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.trades[ticker], nil
}
