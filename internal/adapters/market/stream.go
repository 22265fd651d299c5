package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// QuoteStream maintains a websocket subscription for live quotes
type QuoteStream struct {
	conn           *websocket.Conn
	url            string
	tickers        []string
	quoteChan      chan models.Quote
	errorChan      chan error
	mu             sync.Mutex
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// streamMessage is one frame from the quote feed
type streamMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Ts     int64   `json:"ts"`
}

// NewQuoteStream creates a stream for the given tickers
func NewQuoteStream(url string, tickers []string) *QuoteStream {
	ctx, cancel := context.WithCancel(context.Background())

	return &QuoteStream{
		url:            url,
		tickers:        tickers,
		quoteChan:      make(chan models.Quote, 1000),
		errorChan:      make(chan error, 10),
		reconnectDelay: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect establishes the websocket connection and subscribes
func (qs *QuoteStream) Connect() error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(qs.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to quote stream: %w", err)
	}

	qs.conn = conn

	if err := qs.subscribe(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go qs.readMessages()
	go qs.pingHandler()

	logger.Info("quote stream connected",
		zap.String("url", qs.url),
		zap.Strings("tickers", qs.tickers),
	)

	return nil
}

func (qs *QuoteStream) subscribe() error {
	if len(qs.tickers) == 0 {
		return fmt.Errorf("no tickers to subscribe")
	}

	subMsg := map[string]interface{}{
		"op":      "subscribe",
		"symbols": qs.tickers,
	}

	if err := qs.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	return nil
}

// readMessages pumps frames into the quote channel, reconnecting on
// read failure until the stream is closed.
func (qs *QuoteStream) readMessages() {
	defer func() {
		qs.mu.Lock()
		if qs.conn != nil {
			qs.conn.Close()
		}
		qs.mu.Unlock()

		if qs.ctx.Err() == nil {
			logger.Info("attempting to reconnect quote stream...")
			time.Sleep(qs.reconnectDelay)
			if err := qs.Connect(); err != nil {
				logger.Error("failed to reconnect quote stream", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-qs.ctx.Done():
			return
		default:
		}

		_, message, err := qs.conn.ReadMessage()
		if err != nil {
			logger.Error("quote stream read error", zap.Error(err))
			qs.errorChan <- err
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("failed to parse quote frame", zap.Error(err))
			continue
		}

		if msg.Type != "quote" || msg.Symbol == "" {
			continue
		}

		quote := models.Quote{
			Ticker:    msg.Symbol,
			Price:     models.NewDecimal(msg.Price),
			Volume:    models.NewDecimal(msg.Volume),
			Timestamp: time.UnixMilli(msg.Ts),
		}

		select {
		case qs.quoteChan <- quote:
		default:
			logger.Warn("quote channel full, dropping quote")
		}
	}
}

// pingHandler keeps the connection alive
func (qs *QuoteStream) pingHandler() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-qs.ctx.Done():
			return
		case <-ticker.C:
			qs.mu.Lock()
			if qs.conn != nil {
				ping := map[string]interface{}{"op": "ping"}
				if err := qs.conn.WriteJSON(ping); err != nil {
					logger.Error("failed to send ping", zap.Error(err))
				}
			}
			qs.mu.Unlock()
		}
	}
}

// Quotes returns the channel of live quotes
func (qs *QuoteStream) Quotes() <-chan models.Quote {
	return qs.quoteChan
}

// Errors returns the channel of stream errors
func (qs *QuoteStream) Errors() <-chan error {
	return qs.errorChan
}

// Close stops the stream and closes the connection
func (qs *QuoteStream) Close() error {
	qs.cancel()

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.conn != nil {
		return qs.conn.Close()
	}
	return nil
}
