package calendar

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// DefaultMatchWindow bounds how far an article may sit from a scheduled event
const DefaultMatchWindow = 30 * time.Minute

// recurringSpec describes one macro event expanded over the horizon
type recurringSpec struct {
	cronExpr    string
	name        string
	description string
	category    models.EventCategory
	importance  int
	// firstWeekOnly keeps only occurrences in the first seven days of the
	// month, which turns "every Friday" into "first Friday"
	firstWeekOnly bool
}

// Release schedules are approximations of the official calendars; exact
// dates shift around holidays and are corrected by per-ticker entries.
var recurringSpecs = []recurringSpec{
	{
		cronExpr:    "30 8 13 * *",
		name:        "CPI_RELEASE",
		description: "Consumer Price Index monthly release",
		category:    models.EventEconomic,
		importance:  5,
	},
	{
		cronExpr:      "30 8 * * 5",
		name:          "JOBS_REPORT",
		description:   "Nonfarm payrolls and unemployment report",
		category:      models.EventEconomic,
		importance:    5,
		firstWeekOnly: true,
	},
	{
		cronExpr:    "30 8 28 1,4,7,10 *",
		name:        "GDP_RELEASE",
		description: "Quarterly gross domestic product advance estimate",
		category:    models.EventEconomic,
		importance:  4,
	},
}

// fomcDates lists scheduled FOMC decision days (second day of each meeting)
var fomcDates = map[int][][2]int{
	2025: {{1, 29}, {3, 19}, {5, 7}, {6, 18}, {7, 30}, {9, 17}, {10, 29}, {12, 10}},
	2026: {{1, 28}, {3, 18}, {4, 29}, {6, 17}, {7, 29}, {9, 16}, {10, 28}, {12, 9}},
}

// Calendar holds scheduled market events and answers proximity queries
type Calendar struct {
	mu       sync.RWMutex
	location *time.Location
	events   []models.ScheduledEvent
}

// New creates an empty calendar whose recurring events resolve in loc
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{location: loc}
}

// Seed expands the recurring macro schedule over the horizon and adds
// FOMC decision days from the static meeting table
func (c *Calendar) Seed(from time.Time, horizonDays int) error {
	start := from.In(c.location)
	end := start.AddDate(0, 0, horizonDays)

	var seeded []models.ScheduledEvent

	for _, spec := range recurringSpecs {
		schedule, err := cron.ParseStandard(spec.cronExpr)
		if err != nil {
			return fmt.Errorf("failed to parse schedule for %s: %w", spec.name, err)
		}

		for t := schedule.Next(start); !t.IsZero() && t.Before(end); t = schedule.Next(t) {
			if spec.firstWeekOnly && t.Day() > 7 {
				continue
			}
			seeded = append(seeded, models.ScheduledEvent{
				ID:          uuid.New().String(),
				Name:        spec.name,
				Description: spec.description,
				Category:    spec.category,
				Importance:  spec.importance,
				ScheduledAt: t,
			})
		}
	}

	for year, days := range fomcDates {
		for _, md := range days {
			t := time.Date(year, time.Month(md[0]), md[1], 14, 0, 0, 0, c.location)
			if t.Before(start) || !t.Before(end) {
				continue
			}
			seeded = append(seeded, models.ScheduledEvent{
				ID:          uuid.New().String(),
				Name:        "FOMC_DECISION",
				Description: "Federal Open Market Committee rate decision",
				Category:    models.EventCentralBank,
				Importance:  5,
				ScheduledAt: t,
			})
		}
	}

	c.mu.Lock()
	c.events = append(c.events, seeded...)
	sort.Slice(c.events, func(i, j int) bool {
		return c.events[i].ScheduledAt.Before(c.events[j].ScheduledAt)
	})
	c.mu.Unlock()

	logger.Info("event calendar seeded",
		zap.Int("events", len(seeded)),
		zap.Int("horizon_days", horizonDays),
	)

	return nil
}

// AddEvent inserts one event keeping the list sorted by time
func (c *Calendar) AddEvent(ev models.ScheduledEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)
	sort.Slice(c.events, func(i, j int) bool {
		return c.events[i].ScheduledAt.Before(c.events[j].ScheduledAt)
	})
}

// AddEarnings registers a quarterly earnings slot for one ticker
func (c *Calendar) AddEarnings(ticker, company string, at time.Time) {
	c.AddEvent(models.ScheduledEvent{
		Name:        strings.ToUpper(ticker) + "_EARNINGS",
		Description: company + " quarterly earnings release",
		Ticker:      strings.ToUpper(ticker),
		Category:    models.EventEarnings,
		Importance:  4,
		ScheduledAt: at,
	})
}

// Match returns the first event within the window around ts whose ticker
// matches, or whose name or description contains any of the keywords.
// A zero window falls back to DefaultMatchWindow.
func (c *Calendar) Match(ts time.Time, ticker string, keywords []string, window time.Duration) (models.ScheduledEvent, bool) {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ev := range c.events {
		d := ev.ScheduledAt.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		if ticker != "" && ev.Ticker != "" && ev.Ticker == ticker {
			return ev, true
		}
		if matchKeywords(ev, keywords) {
			return ev, true
		}
	}

	return models.ScheduledEvent{}, false
}

// Upcoming returns events scheduled within the next N days, soonest first
func (c *Calendar) Upcoming(now time.Time, days int) []models.ScheduledEvent {
	end := now.AddDate(0, 0, days)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.ScheduledEvent
	for _, ev := range c.events {
		if ev.ScheduledAt.Before(now) || !ev.ScheduledAt.Before(end) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len returns the number of known events
func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func matchKeywords(ev models.ScheduledEvent, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	name := strings.ToLower(ev.Name)
	desc := strings.ToLower(ev.Description)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(name, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}
