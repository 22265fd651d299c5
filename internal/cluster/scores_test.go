package cluster

import (
	"math"
	"testing"
	"time"

	"github.com/yhwang-dev/tradeshield/internal/sources"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func articleAt(source, title string, at time.Time) models.Article {
	return models.Article{
		Source:      source,
		Title:       title,
		PublishedAt: at,
	}
}

func TestDiversityScore(t *testing.T) {
	classifier := sources.NewClassifier()
	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	t.Run("three distinct majors clamp to one", func(t *testing.T) {
		articles := []models.Article{
			articleAt("Bloomberg", "a", base),
			articleAt("Reuters", "a", base),
			articleAt("CNBC", "a", base),
		}
		if got := diversityScore(articles, classifier); got != 1.0 {
			t.Errorf("diversity = %v, want 1.0", got)
		}
	})

	t.Run("no-name sites stay low", func(t *testing.T) {
		articles := []models.Article{
			articleAt("site-1.com", "a", base),
			articleAt("site-2.com", "a", base),
			articleAt("site-3.com", "a", base),
		}
		got := diversityScore(articles, classifier)
		if !almostEqual(got, 0.3) {
			t.Errorf("diversity = %v, want 0.3", got)
		}
		if got >= 0.4 {
			t.Errorf("diversity = %v, must stay below the manipulation threshold", got)
		}
	})

	t.Run("two distinct minors", func(t *testing.T) {
		articles := []models.Article{
			articleAt("Springfield Daily", "a", base),
			articleAt("Gotham Herald", "a", base),
		}
		got := diversityScore(articles, classifier)
		if !almostEqual(got, 0.7) {
			t.Errorf("diversity = %v, want 0.7", got)
		}
	})

	t.Run("repeat source earns half weight", func(t *testing.T) {
		articles := []models.Article{
			articleAt("Springfield Daily", "a", base),
			articleAt("Springfield Daily", "b", base),
		}
		got := diversityScore(articles, classifier)
		if !almostEqual(got, 0.475) {
			t.Errorf("diversity = %v, want 0.475", got)
		}
	})

	t.Run("empty cluster", func(t *testing.T) {
		if got := diversityScore(nil, classifier); got != 0 {
			t.Errorf("diversity = %v, want 0", got)
		}
	})
}

func TestTimingScore(t *testing.T) {
	dirty := time.Date(2025, 3, 5, 10, 7, 23, 0, time.UTC)
	clean := time.Date(2025, 3, 5, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		times []time.Time
		want  float64
	}{
		{
			name:  "sub-minute burst off schedule",
			times: []time.Time{dirty, dirty.Add(1 * time.Second), dirty.Add(2 * time.Second)},
			want:  -0.8,
		},
		{
			name:  "sub-minute burst at a clean boundary",
			times: []time.Time{clean, clean.Add(10 * time.Second), clean.Add(20 * time.Second)},
			want:  0.8,
		},
		{
			name:  "scripted cadence",
			times: []time.Time{dirty, dirty.Add(100 * time.Second), dirty.Add(200 * time.Second)},
			want:  -0.5,
		},
		{
			name:  "natural cadence",
			times: []time.Time{clean, clean.Add(2 * time.Minute), clean.Add(5 * time.Minute)},
			want:  0.3,
		},
		{
			name:  "slow spread",
			times: []time.Time{dirty, dirty.Add(20 * time.Minute)},
			want:  0.5,
		},
		{
			name:  "single article",
			times: []time.Time{dirty},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles := make([]models.Article, len(tt.times))
			for i, ts := range tt.times {
				articles[i] = articleAt("src", "title", ts)
			}
			if got := timingScore(articles); !almostEqual(got, tt.want) {
				t.Errorf("timing = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVarietyScore(t *testing.T) {
	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	t.Run("identical articles take the copy-paste penalty", func(t *testing.T) {
		a := models.Article{Title: "breaking company news today", PublishedAt: base}
		got := varietyScore([]models.Article{a, a, a})
		if got > 0.3 {
			t.Errorf("variety = %v, want <= 0.3 for identical content", got)
		}
	})

	t.Run("disjoint articles score high", func(t *testing.T) {
		articles := []models.Article{
			{Title: "alpha bravo charlie delta"},
			{Title: "echo foxtrot golf hotel"},
		}
		if got := varietyScore(articles); got != 1.0 {
			t.Errorf("variety = %v, want 1.0", got)
		}
	})

	t.Run("partial overlap lands between", func(t *testing.T) {
		articles := []models.Article{
			{Title: "nvidia earnings beat expectations"},
			{Title: "nvidia earnings disappoint analysts"},
		}
		got := varietyScore(articles)
		if got <= 0 || got >= 1 {
			t.Errorf("variety = %v, want inside (0, 1)", got)
		}
	})

	t.Run("single article", func(t *testing.T) {
		if got := varietyScore([]models.Article{{Title: "solo"}}); got != 1.0 {
			t.Errorf("variety = %v, want 1.0", got)
		}
	})
}

func TestEventLock(t *testing.T) {
	clean := time.Date(2025, 3, 5, 16, 0, 0, 0, time.UTC)
	preMarket := time.Date(2025, 3, 5, 7, 15, 0, 0, time.UTC)
	midday := time.Date(2025, 3, 5, 11, 47, 23, 0, time.UTC)

	t.Run("earnings at a clean boundary", func(t *testing.T) {
		el := eventLock([]string{"quarterly", "earnings", "beat"}, clean)
		if !el.Matched {
			t.Fatal("expected event lock")
		}
		if el.EventName != "QUARTERLY_EARNINGS" {
			t.Errorf("event = %s, want QUARTERLY_EARNINGS", el.EventName)
		}
		if !almostEqual(el.Confidence, 0.90) {
			t.Errorf("confidence = %v, want 0.90", el.Confidence)
		}
	})

	t.Run("earnings off hours", func(t *testing.T) {
		el := eventLock([]string{"earnings"}, preMarket)
		if !el.Matched || !almostEqual(el.Confidence, 0.75) {
			t.Errorf("el = %+v, want matched at 0.75", el)
		}
	})

	t.Run("earnings at a random midday moment", func(t *testing.T) {
		if el := eventLock([]string{"earnings"}, midday); el.Matched {
			t.Errorf("el = %+v, want unmatched", el)
		}
	})

	t.Run("central bank family outranks others", func(t *testing.T) {
		el := eventLock([]string{"fomc", "earnings"}, clean)
		if !el.Matched || el.EventName != "CENTRAL_BANK_DECISION" {
			t.Errorf("el = %+v, want CENTRAL_BANK_DECISION", el)
		}
		if !almostEqual(el.Confidence, 0.95) {
			t.Errorf("confidence = %v, want 0.95", el.Confidence)
		}
	})

	t.Run("korean compound keywords", func(t *testing.T) {
		el := eventLock([]string{"기준금리"}, clean)
		if !el.Matched || el.EventName != "CENTRAL_BANK_DECISION" {
			t.Errorf("el = %+v, want central bank match via compound", el)
		}
	})

	t.Run("no family", func(t *testing.T) {
		if el := eventLock([]string{"5000", "rocket", "moon"}, clean); el.Matched {
			t.Errorf("el = %+v, want unmatched", el)
		}
	})
}

func TestNFPI(t *testing.T) {
	t.Run("manipulation-shaped scores run high", func(t *testing.T) {
		s := models.ClusterScores{Diversity: 0.3, Variety: 0, Timing: -0.8}
		got := NFPI(s)
		if math.Abs(got-87) > 0.5 {
			t.Errorf("NFPI = %v, want about 87", got)
		}
	})

	t.Run("event lock removes the event term", func(t *testing.T) {
		s := models.ClusterScores{
			Diversity: 1,
			Variety:   1,
			Timing:    0.3,
			Event:     models.EventLock{Matched: true, Confidence: 0.9},
		}
		if got := NFPI(s); got != 0 {
			t.Errorf("NFPI = %v, want 0", got)
		}
	})

	t.Run("bounded by 100", func(t *testing.T) {
		s := models.ClusterScores{Diversity: 0, Variety: 0, Timing: -1}
		if got := NFPI(s); got > 100 {
			t.Errorf("NFPI = %v, want <= 100", got)
		}
	})
}
