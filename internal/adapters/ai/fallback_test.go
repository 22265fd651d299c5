package ai

import (
	"strings"
	"testing"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func TestFallbackSentiment(t *testing.T) {
	setupTest(t)
	parser := NewFallbackParser()

	tests := []struct {
		name          string
		title         string
		wantSentiment models.Sentiment
	}{
		{"bullish keywords", "Acme shares surge on record profit, analysts upgrade", models.SentimentPositive},
		{"bearish keywords", "Acme stock plunges after fraud investigation", models.SentimentNegative},
		{"no keywords", "Acme relocates headquarters to Austin", models.SentimentNeutral},
		{"mixed keywords wash out", "Shares gain after earlier loss", models.SentimentNeutral},
		{"korean bearish", "아크메 주가 급락, 분기 적자 기록", models.SentimentNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			article := newTestArticle(tt.title)
			article.Body = ""
			analysis := parser.Parse(article)

			if analysis.Sentiment != tt.wantSentiment {
				t.Errorf("Sentiment = %s (score %f), want %s", analysis.Sentiment, analysis.SentimentScore, tt.wantSentiment)
			}
		})
	}
}

func TestFallbackConfidenceNeverExceedsHalf(t *testing.T) {
	setupTest(t)
	parser := NewFallbackParser()

	// Saturate with sentiment keywords; the cap must still hold.
	article := newTestArticle("surge rally jump beat record profit gain upgrade growth strong bullish")
	article.Body = strings.Repeat("surge rally crash plunge ", 50)

	analysis := parser.Parse(article)
	if analysis.Confidence > 0.5 {
		t.Errorf("Confidence = %f, must never exceed 0.5", analysis.Confidence)
	}
	if analysis.TradingActionable {
		t.Error("fallback analyses must not be trading actionable")
	}
	if !analysis.FallbackUsed {
		t.Error("FallbackUsed must be set")
	}
}

func TestFallbackTopicAndImpact(t *testing.T) {
	setupTest(t)
	parser := NewFallbackParser()

	article := newTestArticle("Fed announces rate decision after FOMC meeting")
	article.Body = ""
	analysis := parser.Parse(article)

	if analysis.Impact < 0.9 {
		t.Errorf("Impact = %f, want >= 0.9 for a rate decision", analysis.Impact)
	}
	if !strings.Contains(analysis.Summary, "keyword fallback") {
		t.Errorf("Summary = %q, want fallback marker with topic", analysis.Summary)
	}
	if analysis.Risk != models.RiskHigh {
		t.Errorf("Risk = %s, fallback must stay conservative HIGH", analysis.Risk)
	}
}

func TestFallbackUrgency(t *testing.T) {
	setupTest(t)
	parser := NewFallbackParser()

	tests := []struct {
		title string
		want  models.Urgency
	}{
		{"BREAKING: trading halted at Acme", models.UrgencyImmediate},
		{"Acme announced a partnership today", models.UrgencyHigh},
		{"Weekly outlook for semiconductor stocks", models.UrgencyLow},
		{"Acme reports quarterly figures", models.UrgencyMedium},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			article := newTestArticle(tt.title)
			article.Body = ""
			if got := parser.Parse(article).Urgency; got != tt.want {
				t.Errorf("Urgency = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFallbackTickerMentions(t *testing.T) {
	setupTest(t)
	parser := NewFallbackParser()

	article := newTestArticle("Acme shares surge on record profit", "acme", "SPY")
	analysis := parser.Parse(article)

	if len(analysis.RelatedTickers) != 2 {
		t.Fatalf("mentions = %d, want 2", len(analysis.RelatedTickers))
	}
	if analysis.RelatedTickers[0].Ticker != "ACME" {
		t.Errorf("ticker = %s, want uppercased ACME", analysis.RelatedTickers[0].Ticker)
	}
	for _, m := range analysis.RelatedTickers {
		if m.Relevance != 75 {
			t.Errorf("relevance = %d, want 75", m.Relevance)
		}
		if m.Sentiment != analysis.Sentiment {
			t.Errorf("mention sentiment = %s, want article sentiment %s", m.Sentiment, analysis.Sentiment)
		}
	}
}
