package signals

import (
	"math"
	"testing"
	"time"

	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func setupTest(t *testing.T) {
	t.Helper()
	if logger.Log == nil {
		if err := logger.Init("error", ""); err != nil {
			t.Fatalf("Failed to initialize logger: %v", err)
		}
	}
}

func testSignalsConfig() *config.SignalsConfig {
	return &config.SignalsConfig{
		BasePositionSize:         0.05,
		MaxPositionSize:          0.10,
		MinConfidence:            0.60,
		ImpactThreshold:          0.5,
		SentimentThreshold:       0.3,
		RelevanceFloor:           70,
		AutoExecuteEnabled:       false,
		AutoExecuteMinConfidence: 0.85,
	}
}

// strong positive earnings analysis that clears every bar
func testAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:                "analysis-1",
		ArticleID:         "article-1",
		Sentiment:         models.SentimentPositive,
		SentimentScore:    0.8,
		Confidence:        0.9,
		Impact:            0.8,
		Urgency:           models.UrgencyHigh,
		Risk:              models.RiskLow,
		TradingActionable: true,
		VerdictMultiplier: 1.0,
		RelatedTickers: []models.TickerMention{
			{Ticker: "AAPL", Sentiment: models.SentimentPositive, Relevance: 90},
		},
	}
}

func TestGenerator_StrongPositive(t *testing.T) {
	setupTest(t)
	g := NewGenerator(testSignalsConfig())
	now := time.Now()

	signal, ok := g.Generate(testAnalysis(), now)
	if !ok {
		t.Fatal("expected a signal")
	}

	if signal.Action != models.ActionBuy {
		t.Errorf("action = %s, want BUY", signal.Action)
	}
	if signal.Ticker != "AAPL" {
		t.Errorf("ticker = %s, want AAPL", signal.Ticker)
	}

	// base 0.05 x (0.5 + impact 0.8) x risk LOW 1.0 = 0.065
	if math.Abs(signal.PositionSize-0.065) > 1e-9 {
		t.Errorf("position size = %v, want 0.065", signal.PositionSize)
	}

	// 0.4x0.9 + 0.3x0.8 + 0.2x1.0 + 0.1x0.8 = 0.88
	if math.Abs(signal.Confidence-0.88) > 1e-9 {
		t.Errorf("confidence = %v, want 0.88", signal.Confidence)
	}

	if signal.ExecutionType != models.ExecutionMarket {
		t.Errorf("execution type = %s, want MARKET", signal.ExecutionType)
	}
	if signal.AutoExecute {
		t.Error("auto execute should be off by default")
	}
	if signal.ID == "" || signal.ArticleID != "article-1" {
		t.Errorf("signal identity not filled: id=%q article=%q", signal.ID, signal.ArticleID)
	}
}

func TestGenerator_Gates(t *testing.T) {
	setupTest(t)
	now := time.Now()
	cooling := now.Add(10 * time.Minute)
	cooled := now.Add(-time.Minute)

	tests := []struct {
		name   string
		mutate func(a *models.Analysis)
		want   bool
	}{
		{
			name:   "baseline passes",
			mutate: func(a *models.Analysis) {},
			want:   true,
		},
		{
			name:   "not actionable",
			mutate: func(a *models.Analysis) { a.TradingActionable = false },
			want:   false,
		},
		{
			name:   "impact below threshold",
			mutate: func(a *models.Analysis) { a.Impact = 0.4 },
			want:   false,
		},
		{
			name: "sentiment below threshold",
			mutate: func(a *models.Analysis) {
				a.Sentiment = models.SentimentNeutral
				a.SentimentScore = 0.1
			},
			want: false,
		},
		{
			name: "no ticker above relevance floor",
			mutate: func(a *models.Analysis) {
				a.RelatedTickers = []models.TickerMention{
					{Ticker: "AAPL", Relevance: 40},
				}
			},
			want: false,
		},
		{
			name: "confidence below minimum",
			mutate: func(a *models.Analysis) {
				a.Confidence = 0.2
				a.Impact = 0.5
				a.Risk = models.RiskCritical
			},
			want: false,
		},
		{
			name:   "cluster cooling suppresses",
			mutate: func(a *models.Analysis) { a.CoolingUntil = &cooling },
			want:   false,
		},
		{
			name:   "expired cooling passes",
			mutate: func(a *models.Analysis) { a.CoolingUntil = &cooled },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(testSignalsConfig())
			a := testAnalysis()
			tt.mutate(a)

			_, ok := g.Generate(a, now)
			if ok != tt.want {
				t.Errorf("got signal = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestDecideAction(t *testing.T) {
	tests := []struct {
		name  string
		label models.Sentiment
		score float64
		want  models.SignalAction
	}{
		{"positive above threshold", models.SentimentPositive, 0.8, models.ActionBuy},
		{"positive below threshold", models.SentimentPositive, 0.2, models.ActionHold},
		{"negative beyond threshold", models.SentimentNegative, -0.8, models.ActionSell},
		{"negative inside threshold", models.SentimentNegative, -0.2, models.ActionHold},
		{"neutral strongly positive", models.SentimentNeutral, 0.5, models.ActionBuy},
		{"neutral strongly negative", models.SentimentNeutral, -0.5, models.ActionSell},
		{"neutral flat", models.SentimentNeutral, 0.1, models.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideAction(tt.label, tt.score, 0.3)
			if got != tt.want {
				t.Errorf("decideAction(%s, %v) = %s, want %s", tt.label, tt.score, got, tt.want)
			}
		})
	}
}

func TestGenerator_PositionSizing(t *testing.T) {
	setupTest(t)
	now := time.Now()

	t.Run("capped at max", func(t *testing.T) {
		cfg := testSignalsConfig()
		cfg.BasePositionSize = 0.08
		g := NewGenerator(cfg)

		a := testAnalysis()
		a.Impact = 1.0 // 0.08 x 1.5 = 0.12, above the 0.10 cap

		signal, ok := g.Generate(a, now)
		if !ok {
			t.Fatal("expected a signal")
		}
		if math.Abs(signal.PositionSize-0.10) > 1e-9 {
			t.Errorf("position size = %v, want capped 0.10", signal.PositionSize)
		}
	})

	t.Run("immediate urgency shrinks size", func(t *testing.T) {
		g := NewGenerator(testSignalsConfig())

		a := testAnalysis()
		a.Urgency = models.UrgencyImmediate

		signal, ok := g.Generate(a, now)
		if !ok {
			t.Fatal("expected a signal")
		}
		// 0.065 x 0.8 = 0.052
		if math.Abs(signal.PositionSize-0.052) > 1e-9 {
			t.Errorf("position size = %v, want 0.052", signal.PositionSize)
		}
		if signal.ExecutionType != models.ExecutionMarket {
			t.Errorf("execution type = %s, want MARKET", signal.ExecutionType)
		}
	})

	t.Run("high risk halves size", func(t *testing.T) {
		g := NewGenerator(testSignalsConfig())

		a := testAnalysis()
		a.Risk = models.RiskHigh

		signal, ok := g.Generate(a, now)
		if !ok {
			t.Fatal("expected a signal")
		}
		// 0.05 x 1.3 x 0.5 = 0.0325
		if math.Abs(signal.PositionSize-0.0325) > 1e-9 {
			t.Errorf("position size = %v, want 0.0325", signal.PositionSize)
		}
	})
}

func TestGenerator_VerdictMultiplier(t *testing.T) {
	setupTest(t)
	now := time.Now()

	t.Run("penalty multiplier suppresses signal", func(t *testing.T) {
		g := NewGenerator(testSignalsConfig())

		a := testAnalysis()
		a.VerdictMultiplier = 0.1 // 0.88 x 0.1 = 0.088, below min confidence

		if _, ok := g.Generate(a, now); ok {
			t.Error("expected penalized analysis to be dropped")
		}
	})

	t.Run("boost multiplier clamps at one", func(t *testing.T) {
		g := NewGenerator(testSignalsConfig())

		a := testAnalysis()
		a.VerdictMultiplier = 1.5 // 0.88 x 1.5 = 1.32, clamped

		signal, ok := g.Generate(a, now)
		if !ok {
			t.Fatal("expected a signal")
		}
		if math.Abs(signal.Confidence-1.0) > 1e-9 {
			t.Errorf("confidence = %v, want clamped 1.0", signal.Confidence)
		}
	})
}

func TestGenerator_AutoExecute(t *testing.T) {
	setupTest(t)
	cfg := testSignalsConfig()
	cfg.AutoExecuteEnabled = true
	g := NewGenerator(cfg)

	signal, ok := g.Generate(testAnalysis(), time.Now())
	if !ok {
		t.Fatal("expected a signal")
	}
	if !signal.AutoExecute {
		t.Error("confidence 0.88 >= 0.85 should mark auto execute")
	}
}

func TestGenerator_ExecutionTypeByUrgency(t *testing.T) {
	setupTest(t)
	g := NewGenerator(testSignalsConfig())
	now := time.Now()

	a := testAnalysis()
	a.Urgency = models.UrgencyMedium

	signal, ok := g.Generate(a, now)
	if !ok {
		t.Fatal("expected a signal")
	}
	if signal.ExecutionType != models.ExecutionLimit {
		t.Errorf("execution type = %s, want LIMIT for medium urgency", signal.ExecutionType)
	}
}
