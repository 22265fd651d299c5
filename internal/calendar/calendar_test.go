package calendar

import (
	"testing"
	"time"

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

func TestCalendar_Seed(t *testing.T) {
	setupTest(t)

	cal := New(time.UTC)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := cal.Seed(from, 40); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	t.Run("CPI lands on the 13th at 08:30", func(t *testing.T) {
		ev, ok := cal.Match(time.Date(2025, 1, 13, 8, 35, 0, 0, time.UTC), "", []string{"cpi"}, 30*time.Minute)
		if !ok {
			t.Fatal("expected CPI event near Jan 13 08:30")
		}
		if ev.Name != "CPI_RELEASE" {
			t.Errorf("event name = %s, want CPI_RELEASE", ev.Name)
		}
		if ev.ScheduledAt.Day() != 13 || ev.ScheduledAt.Hour() != 8 || ev.ScheduledAt.Minute() != 30 {
			t.Errorf("CPI scheduled at %v, want 13th 08:30", ev.ScheduledAt)
		}
	})

	t.Run("jobs report only on first Friday", func(t *testing.T) {
		// First Friday of January 2025 is the 3rd
		if _, ok := cal.Match(time.Date(2025, 1, 3, 8, 30, 0, 0, time.UTC), "", []string{"payrolls"}, time.Minute); !ok {
			t.Error("expected jobs report on Jan 3")
		}
		// Jan 10 is the second Friday, must not carry the event
		if _, ok := cal.Match(time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC), "", []string{"payrolls"}, time.Minute); ok {
			t.Error("jobs report must not appear on the second Friday")
		}
	})

	t.Run("FOMC decision from the meeting table", func(t *testing.T) {
		ev, ok := cal.Match(time.Date(2025, 1, 29, 14, 10, 0, 0, time.UTC), "", []string{"fomc"}, 30*time.Minute)
		if !ok {
			t.Fatal("expected FOMC decision on Jan 29")
		}
		if ev.Category != models.EventCentralBank {
			t.Errorf("category = %s, want %s", ev.Category, models.EventCentralBank)
		}
	})
}

func TestCalendar_Match(t *testing.T) {
	setupTest(t)

	cal := New(time.UTC)
	at := time.Date(2025, 7, 24, 16, 0, 0, 0, time.UTC)
	cal.AddEarnings("NVDA", "NVIDIA Corporation", at)

	t.Run("ticker match inside window", func(t *testing.T) {
		ev, ok := cal.Match(at.Add(10*time.Minute), "nvda", nil, 30*time.Minute)
		if !ok {
			t.Fatal("expected ticker match")
		}
		if ev.Name != "NVDA_EARNINGS" {
			t.Errorf("event = %s, want NVDA_EARNINGS", ev.Name)
		}
	})

	t.Run("keyword match inside window", func(t *testing.T) {
		if _, ok := cal.Match(at.Add(-20*time.Minute), "", []string{"earnings"}, 30*time.Minute); !ok {
			t.Error("expected keyword match on description")
		}
	})

	t.Run("outside window", func(t *testing.T) {
		if _, ok := cal.Match(at.Add(31*time.Minute), "NVDA", nil, 30*time.Minute); ok {
			t.Error("match outside the window must fail")
		}
	})

	t.Run("no ticker and no keyword", func(t *testing.T) {
		if _, ok := cal.Match(at, "TSLA", nil, 30*time.Minute); ok {
			t.Error("mismatched ticker without keywords must fail")
		}
	})

	t.Run("zero window uses default", func(t *testing.T) {
		if _, ok := cal.Match(at.Add(25*time.Minute), "NVDA", nil, 0); !ok {
			t.Error("zero window should fall back to the 30 minute default")
		}
	})
}

func TestCalendar_Upcoming(t *testing.T) {
	setupTest(t)

	cal := New(time.UTC)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cal.AddEarnings("AAPL", "Apple Inc.", now.AddDate(0, 0, 5))
	cal.AddEarnings("MSFT", "Microsoft Corporation", now.AddDate(0, 0, 2))
	cal.AddEarnings("TSLA", "Tesla Inc.", now.AddDate(0, 0, 20))

	got := cal.Upcoming(now, 10)
	if len(got) != 2 {
		t.Fatalf("Upcoming(10d) returned %d events, want 2", len(got))
	}
	if got[0].Ticker != "MSFT" || got[1].Ticker != "AAPL" {
		t.Errorf("events not sorted by time: %s, %s", got[0].Ticker, got[1].Ticker)
	}
}
